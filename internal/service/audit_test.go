package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/pkg/events"
	"chatserver-be/pkg/querypipeline"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newAuditHarness(t *testing.T, s *store) (*AuditPublisher, *recordingEvents, *metrics.Metrics) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	m := metrics.New(prometheus.NewRegistry())
	bus := &recordingEvents{}
	consumer := NewAuditConsumerService(pubSub, "", fakeFactory{s: s}, bus, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, consumer.Consume(ctx))

	return NewAuditPublisher(pubSub, "", m, nil), bus, m
}

func sampleEntry(status querypipeline.Status) querypipeline.AuditEntry {
	return querypipeline.AuditEntry{
		RequestID:  uuid.New(),
		ThreadID:   uuid.New(),
		Principal:  uuid.New(),
		Text:       "monthly totals",
		Status:     status,
		RecordedAt: time.Now().UTC(),
	}
}

func TestAudit_RecordPersistsAndAnnounces(t *testing.T) {
	s := newStore()
	pub, bus, _ := newAuditHarness(t, s)

	entry := sampleEntry(querypipeline.StatusRejected)
	entry.Reason = querypipeline.ReasonUnsafeQuery
	entry.FailedAt = querypipeline.StateGenerated
	pub.Record(entry)

	require.Eventually(t, func() bool { return bus.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	audits, _ := fakeAudits{s}.FindAll(context.Background())
	require.Len(t, audits, 1)
	assert.Equal(t, entry.RequestID, audits[0].RequestID)
	assert.Equal(t, "rejected", audits[0].Status)
	assert.Equal(t, "generated", audits[0].FailedAt)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, events.TypeQueryAudited, bus.events[0].EventType())
	assert.Equal(t, entry.RequestID.String(), bus.events[0].Payload()["request_id"])
}

func TestAudit_PersistFailureIsCountedNotRetried(t *testing.T) {
	s := newStore()
	s.auditErr = assert.AnError
	pub, bus, m := newAuditHarness(t, s)

	pub.Record(sampleEntry(querypipeline.StatusSucceeded))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.AuditFailures) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, bus.count())
}
