package service

import (
	"context"
	"errors"
	"sync"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/contract"
	"chatserver-be/internal/repository/specification"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
)

// store backs every fake repository handed out by fakeFactory.
type store struct {
	mu         sync.Mutex
	threads    map[uuid.UUID]*model.Thread
	members    map[[2]uuid.UUID]bool
	messages   []*model.Message
	audits     []*model.QueryAudit
	messageErr error
	auditErr   error
	threadErr  error

	// allowListErr fails LoadAllowList only, so Submit still passes.
	allowListErr error
}

func newStore() *store {
	return &store{threads: map[uuid.UUID]*model.Thread{}, members: map[[2]uuid.UUID]bool{}}
}

func (s *store) addMember(channelID, userID uuid.UUID) {
	s.members[[2]uuid.UUID{channelID, userID}] = true
}

func (s *store) snapshotMessages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Message(nil), s.messages...)
}

type fakeFactory struct{ s *store }

func (f fakeFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return fakeUoW{s: f.s} }

type fakeUoW struct{ s *store }

func (fakeUoW) Begin(ctx context.Context) error { return nil }
func (fakeUoW) Commit() error                   { return nil }
func (fakeUoW) Rollback() error                 { return nil }

func (u fakeUoW) ThreadRepository() contract.ThreadRepository               { return fakeThreads{u.s} }
func (u fakeUoW) MessageRepository() contract.MessageRepository             { return fakeMessages{u.s} }
func (u fakeUoW) ChannelMemberRepository() contract.ChannelMemberRepository { return fakeMembers{u.s} }
func (u fakeUoW) QueryAuditRepository() contract.QueryAuditRepository       { return fakeAudits{u.s} }

type fakeThreads struct{ s *store }

func (r fakeThreads) FindOne(ctx context.Context, specs ...specification.Specification) (*model.Thread, error) {
	if r.s.threadErr != nil {
		return nil, r.s.threadErr
	}
	for _, spec := range specs {
		if byID, ok := spec.(specification.ByID); ok {
			r.s.mu.Lock()
			defer r.s.mu.Unlock()
			return r.s.threads[byID.ID], nil
		}
	}
	return nil, errors.New("unsupported specification")
}

func (r fakeThreads) LoadAllowList(ctx context.Context, threadID uuid.UUID) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.allowListErr != nil {
		return nil, r.s.allowListErr
	}
	if t, ok := r.s.threads[threadID]; ok {
		return []string(t.AllowedTables), nil
	}
	return nil, nil
}

type fakeMessages struct{ s *store }

func (r fakeMessages) RecordMessage(ctx context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.messageErr != nil {
		return r.s.messageErr
	}
	r.s.messages = append(r.s.messages, m)
	return nil
}

func (r fakeMessages) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Message, error) {
	return r.s.snapshotMessages(), nil
}

type fakeMembers struct{ s *store }

func (r fakeMembers) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.members[[2]uuid.UUID{channelID, userID}], nil
}

type fakeAudits struct{ s *store }

func (r fakeAudits) Create(ctx context.Context, a *model.QueryAudit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditErr != nil {
		return r.s.auditErr
	}
	r.s.audits = append(r.s.audits, a)
	return nil
}

func (r fakeAudits) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.QueryAudit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*model.QueryAudit(nil), r.s.audits...), nil
}

type published struct {
	scope   fanout.Scope
	payload protocol.Payload
}

type recordingRouter struct {
	mu   sync.Mutex
	sent []published
}

func (r *recordingRouter) Publish(scope fanout.Scope, payload protocol.Payload, opts ...fanout.PublishOption) fanout.DeliveryReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{scope: scope, payload: payload})
	return fanout.DeliveryReport{Recipients: 1, Delivered: 1}
}

func (r *recordingRouter) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.sent...)
}
