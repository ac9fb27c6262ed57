package service

import (
	"testing"
	"time"

	"chatserver-be/internal/model"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"
	"chatserver-be/pkg/querypipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLLMResponse(t *testing.T) {
	base := querypipeline.Result{
		RequestID: uuid.New(),
		ThreadID:  uuid.New(),
		Principal: uuid.New(),
		Query:     "monthly totals",
		Duration:  1500 * time.Millisecond,
	}

	tests := []struct {
		name        string
		mutate      func(r *querypipeline.Result)
		wantResults bool
		wantError   string
	}{
		{
			name: "success carries results only",
			mutate: func(r *querypipeline.Result) {
				r.Status = querypipeline.StatusSucceeded
				r.SQL = "SELECT 1 LIMIT 1000"
				r.Columns = []string{"x"}
				r.Rows = []map[string]any{{"x": 1}}
				r.RowCount = 1
			},
			wantResults: true,
		},
		{
			name: "empty success still has a results array",
			mutate: func(r *querypipeline.Result) {
				r.Status = querypipeline.StatusSucceeded
			},
			wantResults: true,
		},
		{
			name: "rejection carries error only",
			mutate: func(r *querypipeline.Result) {
				r.Status = querypipeline.StatusRejected
				r.Reason = querypipeline.ReasonTableNotAllowed
				r.SQL = "SELECT * FROM customers"
			},
			wantError: querypipeline.ReasonTableNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := base
			tt.mutate(&res)

			resp := BuildLLMResponse(res)
			assert.Equal(t, res.ThreadID.String(), resp.ThreadID)
			assert.InDelta(t, 1.5, resp.ExecutionTime, 0.001)
			if tt.wantResults {
				assert.NotNil(t, resp.Results)
				assert.Empty(t, resp.Error)
			} else {
				assert.Nil(t, resp.Results)
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestResultBridge_DeliverPublishesOnThreadAndRecords(t *testing.T) {
	s := newStore()
	router := &recordingRouter{}
	bridge := NewResultBridge(router, fakeFactory{s: s}, "gpt-4o-mini", nil)

	channelID := uuid.New()
	res := querypipeline.Result{
		RequestID: uuid.New(),
		ThreadID:  uuid.New(),
		Status:    querypipeline.StatusFailed,
		Reason:    querypipeline.ReasonTimedOut,
	}
	bridge.Deliver(channelID, res)

	sent := router.all()
	require.Len(t, sent, 1)
	assert.Equal(t, fanout.ThreadScope(res.ThreadID.String()), sent[0].scope)
	assert.Equal(t, protocol.KindLLMResponse, sent[0].payload.Kind())

	msgs := s.snapshotMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, channelID, msgs[0].ChannelID)
	assert.Equal(t, model.MessageTypeLLMResponse, msgs[0].MessageType)
	assert.Equal(t, "Query failed: request timed out", msgs[0].Content)
	assert.Equal(t, querypipeline.ReasonTimedOut, msgs[0].LLMContext["error"])
}

func TestResultBridge_RecordFailureDoesNotBlockDelivery(t *testing.T) {
	s := newStore()
	s.messageErr = assert.AnError
	router := &recordingRouter{}

	report := NewResultBridge(router, fakeFactory{s: s}, "", nil).Deliver(uuid.New(), querypipeline.Result{
		ThreadID: uuid.New(),
		Status:   querypipeline.StatusSucceeded,
	})
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, router.all(), 1)
}
