package model

import (
	"time"

	"github.com/google/uuid"
)

// QueryAudit is append-only: one row per terminal query pipeline state.
type QueryAudit struct {
	RequestID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"request_id"`
	ThreadID     uuid.UUID `gorm:"type:uuid;not null;index:idx_query_audits_thread_recorded,priority:1" json:"thread_id"`
	PrincipalID  uuid.UUID `gorm:"type:uuid;not null;index" json:"principal_id"`
	QueryText    string    `gorm:"type:text;not null" json:"query_text"`
	GeneratedSQL string    `gorm:"type:text" json:"generated_sql,omitempty"`
	Status       string    `gorm:"type:varchar(20);not null" json:"status"`
	Reason       string    `gorm:"type:varchar(100)" json:"reason,omitempty"`
	FailedAt     string    `gorm:"type:varchar(30)" json:"failed_at,omitempty"`
	Detail       string    `gorm:"type:text" json:"detail,omitempty"`
	RowCount     int       `gorm:"default:0" json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	RecordedAt   time.Time `gorm:"not null;index:idx_query_audits_thread_recorded,priority:2" json:"recorded_at"`
}

func (QueryAudit) TableName() string {
	return "query_audits"
}
