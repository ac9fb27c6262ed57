package contract

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/specification"
)

type MessageRepository interface {
	// RecordMessage inserts the message and bumps the owning thread's counter.
	RecordMessage(ctx context.Context, message *model.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Message, error)
}
