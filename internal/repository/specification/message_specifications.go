package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByID matches a single row by primary key.
type ByID struct {
	ID uuid.UUID
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

type ByThreadID struct {
	ThreadID uuid.UUID
}

func (s ByThreadID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("thread_id = ?", s.ThreadID)
}

type ByChannelID struct {
	ChannelID uuid.UUID
}

func (s ByChannelID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("channel_id = ?", s.ChannelID)
}

// ByMessageType filters on message_type, e.g. only llm_response rows.
type ByMessageType struct {
	Type string
}

func (s ByMessageType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("message_type = ?", s.Type)
}

type RecordedSince struct {
	Since time.Time
}

func (s RecordedSince) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("recorded_at >= ?", s.Since)
}
