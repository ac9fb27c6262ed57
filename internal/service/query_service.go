package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/repository/specification"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/pkg/querypipeline"
	"chatserver-be/pkg/ratelimit"

	"github.com/google/uuid"
)

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrLLMDisabled      = errors.New("LLM queries are not enabled for this thread")
	ErrEmptyQuery       = errors.New("query text is empty")
	ErrNotChannelMember = errors.New("not a member of this channel")
	ErrRateLimited      = errors.New("too many queries, please slow down")
	ErrQueryTooLong     = errors.New("query text is too long")
)

// MaxQueryLength bounds the natural-language question.
const MaxQueryLength = 2000

// PipelineRunner is implemented by *querypipeline.Pipeline.
type PipelineRunner interface {
	Run(req querypipeline.Request) querypipeline.Result
}

type IQueryService interface {
	// Submit validates synchronously and returns the request id; the
	// pipeline then runs on its own and its outcome reaches the thread as
	// an llm_response event.
	Submit(ctx context.Context, principal, threadID uuid.UUID, text string) (uuid.UUID, error)
	// Wait blocks until every submitted pipeline has been delivered.
	Wait()
}

type queryService struct {
	uowFactory unitofwork.RepositoryFactory
	messages   IMessageService
	pipeline   PipelineRunner
	bridge     IResultBridge
	limiter    *ratelimit.Keyed
	logger     logger.ILogger

	inflight sync.WaitGroup
}

func NewQueryService(
	uowFactory unitofwork.RepositoryFactory,
	messages IMessageService,
	pipeline PipelineRunner,
	bridge IResultBridge,
	limiter *ratelimit.Keyed,
	log logger.ILogger,
) IQueryService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &queryService{
		uowFactory: uowFactory,
		messages:   messages,
		pipeline:   pipeline,
		bridge:     bridge,
		limiter:    limiter,
		logger:     log,
	}
}

func (s *queryService) Submit(ctx context.Context, principal, threadID uuid.UUID, text string) (uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return uuid.Nil, ErrEmptyQuery
	}
	if len(text) > MaxQueryLength {
		return uuid.Nil, fmt.Errorf("%w: limit is %d characters", ErrQueryTooLong, MaxQueryLength)
	}
	if !s.limiter.Allow(principal.String()) {
		return uuid.Nil, ErrRateLimited
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	thread, err := uow.ThreadRepository().FindOne(ctx, specification.ByID{ID: threadID})
	if err != nil {
		return uuid.Nil, fmt.Errorf("load thread: %w", err)
	}
	if thread == nil {
		return uuid.Nil, ErrThreadNotFound
	}
	if !thread.IsLLMEnabled {
		return uuid.Nil, ErrLLMDisabled
	}

	member, err := uow.ChannelMemberRepository().IsMember(ctx, thread.ChannelID, principal)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return uuid.Nil, ErrNotChannelMember
	}

	if _, err := s.messages.Post(ctx, principal, thread.ChannelID, &thread.ID, text); err != nil {
		return uuid.Nil, err
	}

	requestID := uuid.New()
	channelID := thread.ChannelID

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.run(requestID, channelID, principal, threadID, text)
	}()

	s.logger.Info("QueryService", "Query accepted", map[string]interface{}{
		"request_id": requestID.String(),
		"thread_id":  threadID.String(),
		"user_id":    principal.String(),
	})
	return requestID, nil
}

// run is detached from the submitter's context; the pipeline enforces its
// own deadlines.
func (s *queryService) run(requestID, channelID, principal, threadID uuid.UUID, text string) {
	// The allow-list is read when the request starts so an administrator
	// change applies to the next query.
	uow := s.uowFactory.NewUnitOfWork(context.Background())
	allowList, err := uow.ThreadRepository().LoadAllowList(context.Background(), threadID)
	if err != nil {
		s.logger.Error("QueryService", "Failed to load allow-list", map[string]interface{}{
			"request_id": requestID.String(),
			"thread_id":  threadID.String(),
			"error":      err.Error(),
		})
	}

	res := s.pipeline.Run(querypipeline.Request{
		ID:           requestID,
		ThreadID:     threadID,
		Principal:    principal,
		Text:         text,
		AllowList:    allowList,
		AllowListErr: err,
	})
	s.bridge.Deliver(channelID, res)
}

func (s *queryService) Wait() {
	s.inflight.Wait()
}
