package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatserver-be/internal/model"
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/repository/unitofwork"
	"chatserver-be/pkg/events"
	"chatserver-be/pkg/fanout"
	pktNats "chatserver-be/pkg/nats"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message is empty")

// RoutePublisher is the slice of the fanout router the services need.
type RoutePublisher interface {
	Publish(scope fanout.Scope, payload protocol.Payload, opts ...fanout.PublishOption) fanout.DeliveryReport
}

// EventSubscriber is implemented by pkg/nats.Subscriber.
type EventSubscriber interface {
	Subscribe(subject string, durableName string, handler pktNats.EventHandler) error
}

type IMessageService interface {
	Post(ctx context.Context, author, channelID uuid.UUID, threadID *uuid.UUID, content string) (*model.Message, error)
	Broadcast(msg *model.Message) fanout.DeliveryReport
	Start(sub EventSubscriber) error
}

type messageService struct {
	uowFactory unitofwork.RepositoryFactory
	router     RoutePublisher
	logger     logger.ILogger
}

func NewMessageService(uowFactory unitofwork.RepositoryFactory, router RoutePublisher, log logger.ILogger) IMessageService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &messageService{uowFactory: uowFactory, router: router, logger: log}
}

// Post persists a user message and delivers it to the thread scope when it is
// a reply, otherwise to the channel scope. The author's own connections receive it too.
func (s *messageService) Post(ctx context.Context, author, channelID uuid.UUID, threadID *uuid.UUID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	msg := &model.Message{
		ID:          uuid.New(),
		ChannelID:   channelID,
		AuthorID:    author,
		ThreadID:    threadID,
		Content:     content,
		MessageType: model.MessageTypeText,
		CreatedAt:   time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.MessageRepository().RecordMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}

	s.Broadcast(msg)
	return msg, nil
}

func (s *messageService) Broadcast(msg *model.Message) fanout.DeliveryReport {
	payload := protocol.NewMessage{
		ChannelID: msg.ChannelID.String(),
		UserID:    msg.AuthorID.String(),
		Message: protocol.MessageBody{
			ID:          msg.ID.String(),
			Content:     msg.Content,
			AuthorID:    msg.AuthorID.String(),
			MessageType: msg.MessageType,
			CreatedAt:   msg.CreatedAt,
		},
	}
	if len(msg.LLMContext) > 0 {
		if raw, err := json.Marshal(msg.LLMContext); err == nil {
			payload.Message.LLMContext = raw
		}
	}

	scope := fanout.ChannelScope(payload.ChannelID)
	if msg.ThreadID != nil {
		payload.ThreadID = msg.ThreadID.String()
		scope = fanout.ThreadScope(payload.ThreadID)
	}
	return s.router.Publish(scope, payload)
}

// Start consumes MESSAGE_CREATED events written by other services so their
// messages reach connected clients.
func (s *messageService) Start(sub EventSubscriber) error {
	if sub == nil {
		return nil
	}
	subject := pktNats.SubjectPrefix + events.TypeMessageCreated
	if err := sub.Subscribe(subject, "chat-message-fanout", s.handleMessageCreated); err != nil {
		s.logger.Error("MessageService", "Failed to start message subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("MessageService", "Listening for "+subject, nil)
	return nil
}

func (s *messageService) handleMessageCreated(ctx context.Context, event events.Event) error {
	msg, err := messageFromEvent(event)
	if err != nil {
		// Malformed events are acknowledged and dropped.
		s.logger.Warn("MessageService", "Ignoring malformed MESSAGE_CREATED", map[string]interface{}{"error": err.Error()})
		return nil
	}
	report := s.Broadcast(msg)
	s.logger.Debug("MessageService", "Relayed external message", map[string]interface{}{
		"message_id": msg.ID.String(),
		"recipients": report.Recipients,
	})
	return nil
}

func messageFromEvent(event events.Event) (*model.Message, error) {
	id, err := uuid.Parse(events.String(event, "message_id"))
	if err != nil {
		return nil, fmt.Errorf("message_id: %w", err)
	}
	channelID, err := uuid.Parse(events.String(event, "channel_id"))
	if err != nil {
		return nil, fmt.Errorf("channel_id: %w", err)
	}
	authorID, err := uuid.Parse(events.String(event, "author_id"))
	if err != nil {
		return nil, fmt.Errorf("author_id: %w", err)
	}

	msg := &model.Message{
		ID:          id,
		ChannelID:   channelID,
		AuthorID:    authorID,
		Content:     events.String(event, "content"),
		MessageType: events.String(event, "message_type"),
		CreatedAt:   event.Timestamp(),
	}
	if msg.MessageType == "" {
		msg.MessageType = model.MessageTypeText
	}
	if raw := events.String(event, "thread_id"); raw != "" {
		threadID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("thread_id: %w", err)
		}
		msg.ThreadID = &threadID
	}
	if raw := events.String(event, "created_at"); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			msg.CreatedAt = t
		}
	}
	return msg, nil
}
