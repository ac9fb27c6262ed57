package implementation

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/contract"
	"chatserver-be/internal/repository/scope"
	"chatserver-be/internal/repository/specification"

	"gorm.io/gorm"
)

type MessageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) contract.MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

func (r *MessageRepositoryImpl) RecordMessage(ctx context.Context, message *model.Message) error {
	if message.MessageType == "" {
		message.MessageType = model.MessageTypeText
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return err
	}
	if message.ThreadID == nil {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Thread{}).
		Where("id = ?", *message.ThreadID).
		UpdateColumn("message_count", gorm.Expr("message_count + ?", 1)).Error
}

func (r *MessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Message, error) {
	var models []*model.Message
	query := applySpecifications(r.db.WithContext(ctx).Scopes(scope.OrderByCreatedAsc), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
