package service

import (
	"context"
	"encoding/json"
	"time"

	"chatserver-be/internal/model"
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/pkg/events"
	"chatserver-be/pkg/querypipeline"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventPublisher is implemented by pkg/nats.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type auditConsumerService struct {
	sub        message.Subscriber
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	events     EventPublisher
	metrics    *metrics.Metrics
	logger     logger.ILogger
}

// NewAuditConsumerService persists audit entries from the queue and announces
// each one as QUERY_AUDITED. events may be nil.
func NewAuditConsumerService(
	sub message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	eventPublisher EventPublisher,
	m *metrics.Metrics,
	log logger.ILogger,
) IConsumerService {
	if topicName == "" {
		topicName = AuditTopic
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &auditConsumerService{
		sub:        sub,
		topicName:  topicName,
		uowFactory: uowFactory,
		events:     eventPublisher,
		metrics:    m,
		logger:     log,
	}
}

func (cs *auditConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.sub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage always acks: a failed audit write is counted and logged,
// never retried in a loop and never surfaced to the requester.
func (cs *auditConsumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var entry querypipeline.AuditEntry
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		cs.metrics.AuditFailed()
		cs.logger.Error("AuditConsumer", "Failed to unmarshal audit entry", map[string]interface{}{"error": err.Error()})
		return
	}

	row := auditModel(entry)
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.QueryAuditRepository().Create(ctx, row); err != nil {
		cs.metrics.AuditFailed()
		cs.logger.Error("AuditConsumer", "Failed to persist audit entry", map[string]interface{}{
			"request_id": entry.RequestID.String(),
			"error":      err.Error(),
		})
		return
	}

	if cs.events == nil {
		return
	}
	evt := events.BaseEvent{
		Type: events.TypeQueryAudited,
		Data: map[string]interface{}{
			"request_id":   entry.RequestID.String(),
			"thread_id":    entry.ThreadID.String(),
			"principal_id": entry.Principal.String(),
			"status":       string(entry.Status),
			"reason":       entry.Reason,
			"row_count":    entry.RowCount,
			"duration_ms":  entry.DurationMs,
		},
		OccurredAt: entry.RecordedAt,
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cs.events.Publish(pubCtx, evt); err != nil {
		cs.logger.Warn("AuditConsumer", "Failed to publish QUERY_AUDITED", map[string]interface{}{
			"request_id": entry.RequestID.String(),
			"error":      err.Error(),
		})
	}
}

func auditModel(e querypipeline.AuditEntry) *model.QueryAudit {
	return &model.QueryAudit{
		RequestID:    e.RequestID,
		ThreadID:     e.ThreadID,
		PrincipalID:  e.Principal,
		QueryText:    e.Text,
		GeneratedSQL: e.SQL,
		Status:       string(e.Status),
		Reason:       e.Reason,
		FailedAt:     string(e.FailedAt),
		Detail:       e.Detail,
		RowCount:     e.RowCount,
		DurationMs:   e.DurationMs,
		RecordedAt:   e.RecordedAt,
	}
}
