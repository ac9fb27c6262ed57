package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MessageTypeText        = "text"
	MessageTypeLLMResponse = "llm_response"
	MessageTypeSystem      = "system"
)

// SystemAuthorID authors messages produced by the server itself.
var SystemAuthorID = uuid.Nil

type Message struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ChannelID    uuid.UUID         `gorm:"type:uuid;not null;index:idx_messages_channel_created,priority:1" json:"channel_id"`
	AuthorID     uuid.UUID         `gorm:"type:uuid;not null" json:"author_id"`
	ThreadID     *uuid.UUID        `gorm:"type:uuid;index" json:"thread_id,omitempty"`
	Content      string            `gorm:"type:text;not null" json:"content"`
	MessageType  string            `gorm:"type:varchar(50);default:'text'" json:"message_type"`
	LLMContext   datatypes.JSONMap `gorm:"type:jsonb" json:"llm_context,omitempty"`
	LLMModelUsed string            `gorm:"type:varchar(100)" json:"llm_model_used,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime;index:idx_messages_channel_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}
