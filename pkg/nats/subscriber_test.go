package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		data     string
		wantType string
		wantAt   time.Time
		wantErr  bool
	}{
		{
			name:     "strips subject prefix and reads occurred_at",
			subject:  "events.MESSAGE_CREATED",
			data:     `{"message_id":"m1","occurred_at":"2026-03-01T10:00:00Z"}`,
			wantType: "MESSAGE_CREATED",
			wantAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "missing timestamp falls back to now",
			subject:  "events.QUERY_AUDITED",
			data:     `{"request_id":"r1"}`,
			wantType: "QUERY_AUDITED",
		},
		{
			name:    "invalid json",
			subject: "events.MESSAGE_CREATED",
			data:    `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := decodeEvent(tt.subject, []byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, evt.EventType())
			if !tt.wantAt.IsZero() {
				assert.True(t, tt.wantAt.Equal(evt.Timestamp()))
			} else {
				assert.WithinDuration(t, time.Now(), evt.Timestamp(), time.Minute)
			}
		})
	}
}
