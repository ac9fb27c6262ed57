package model

import (
	"time"

	"github.com/google/uuid"
)

type ChannelMember struct {
	ChannelID uuid.UUID `gorm:"type:uuid;primaryKey" json:"channel_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	Role      string    `gorm:"type:varchar(20);default:'member'" json:"role"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (ChannelMember) TableName() string {
	return "channel_members"
}
