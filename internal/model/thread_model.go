package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Thread is a reply chain inside a channel. AllowedTables is set by an
// administrator and is the only source of a thread's query allow-list.
type Thread struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ChannelID        uuid.UUID                   `gorm:"type:uuid;not null;index" json:"channel_id"`
	RootMessageID    *uuid.UUID                  `gorm:"type:uuid" json:"root_message_id,omitempty"`
	Title            string                      `gorm:"type:varchar(255)" json:"title"`
	IsLLMEnabled     bool                        `gorm:"default:true" json:"is_llm_enabled"`
	AllowedDatabases datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allowed_databases"`
	AllowedTables    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"allowed_tables"`
	MessageCount     int                         `gorm:"default:0" json:"message_count"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt              `gorm:"index" json:"-"`
}

func (Thread) TableName() string {
	return "threads"
}
