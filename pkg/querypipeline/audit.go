package querypipeline

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is the immutable record of one terminal pipeline state.
type AuditEntry struct {
	RequestID  uuid.UUID `json:"request_id"`
	ThreadID   uuid.UUID `json:"thread_id"`
	Principal  uuid.UUID `json:"principal"`
	Text       string    `json:"text"`
	SQL        string    `json:"sql,omitempty"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	FailedAt   State     `json:"failed_at,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	RowCount   int       `json:"row_count"`
	DurationMs int64     `json:"duration_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

func NewAuditEntry(r Result, at time.Time) AuditEntry {
	return AuditEntry{
		RequestID:  r.RequestID,
		ThreadID:   r.ThreadID,
		Principal:  r.Principal,
		Text:       r.Query,
		SQL:        r.SQL,
		Status:     r.Status,
		Reason:     r.Reason,
		FailedAt:   r.FailedAt,
		Detail:     r.Detail,
		RowCount:   r.RowCount,
		DurationMs: r.Duration.Milliseconds(),
		RecordedAt: at.UTC(),
	}
}

// Auditor receives every terminal state. Record must return promptly and
// must not report failure to the caller.
type Auditor interface {
	Record(entry AuditEntry)
}

type NopAuditor struct{}

func (NopAuditor) Record(AuditEntry) {}
