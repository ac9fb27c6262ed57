package implementation

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChannelMemberRepositoryImpl struct {
	db *gorm.DB
}

func NewChannelMemberRepository(db *gorm.DB) contract.ChannelMemberRepository {
	return &ChannelMemberRepositoryImpl{db: db}
}

func (r *ChannelMemberRepositoryImpl) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChannelMember{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
