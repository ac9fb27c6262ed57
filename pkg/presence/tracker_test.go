package presence

import (
	"sync"
	"testing"
	"time"

	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	scope   fanout.Scope
	payload protocol.Payload
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(scope fanout.Scope, payload protocol.Payload, _ ...fanout.PublishOption) fanout.DeliveryReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{scope: scope, payload: payload})
	return fanout.DeliveryReport{}
}

func (f *fakePublisher) typingEvents() []protocol.TypingIndicator {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.TypingIndicator
	for _, e := range f.events {
		if ti, ok := e.payload.(protocol.TypingIndicator); ok {
			out = append(out, ti)
		}
	}
	return out
}

func (f *fakePublisher) statusEvents() []protocol.UserStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.UserStatus
	for _, e := range f.events {
		if us, ok := e.payload.(protocol.UserStatus); ok {
			out = append(out, us)
		}
	}
	return out
}

func newTestTracker(pub Publisher, start time.Time) (*Tracker, *time.Time) {
	clock := start
	tr := NewTracker(pub, Config{TypingTimeout: 5 * time.Second})
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestTypingExpiresExactlyOnce(t *testing.T) {
	pub := &fakePublisher{}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, _ := newTestTracker(pub, start)
	alice := uuid.New()

	tr.Typing(alice, "c1")
	assert.Equal(t, 0, tr.Sweep(start.Add(4*time.Second)))
	assert.Equal(t, 1, tr.Sweep(start.Add(5*time.Second)))
	assert.Equal(t, 0, tr.Sweep(start.Add(10*time.Second)))
	assert.Equal(t, 0, tr.Sweep(start.Add(time.Hour)))

	events := pub.typingEvents()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsTyping)
	assert.False(t, events[1].IsTyping)
	assert.Equal(t, alice.String(), events[1].UserID)
}

func TestRepeatedTypingRearmsWithoutNewEvents(t *testing.T) {
	pub := &fakePublisher{}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr, clock := newTestTracker(pub, start)
	alice := uuid.New()

	tr.Typing(alice, "c1")
	*clock = start.Add(3 * time.Second)
	tr.Typing(alice, "c1")

	assert.Equal(t, 0, tr.Sweep(start.Add(6*time.Second)), "deadline was re-armed")
	assert.Equal(t, 1, tr.Sweep(start.Add(8*time.Second)))
	assert.Len(t, pub.typingEvents(), 2)
}

func TestStopTyping(t *testing.T) {
	pub := &fakePublisher{}
	tr, _ := newTestTracker(pub, time.Now())
	alice := uuid.New()

	tr.StopTyping(alice, "c1")
	assert.Empty(t, pub.typingEvents(), "stop while idle emits nothing")

	tr.Typing(alice, "c1")
	tr.StopTyping(alice, "c1")
	tr.StopTyping(alice, "c1")
	assert.False(t, tr.IsTyping(alice, "c1"))

	events := pub.typingEvents()
	require.Len(t, events, 2)
	assert.False(t, events[1].IsTyping)
	assert.Equal(t, 0, tr.Sweep(time.Now().Add(time.Minute)))
}

func TestPresenceOnlineOfflineOncePerPrincipal(t *testing.T) {
	pub := &fakePublisher{}
	tr, _ := newTestTracker(pub, time.Now())
	alice := uuid.New()

	tr.Connected(alice)
	tr.Connected(alice)
	tr.Disconnected(alice)
	assert.True(t, tr.IsOnline(alice))
	tr.Disconnected(alice)
	tr.Disconnected(alice)
	assert.False(t, tr.IsOnline(alice))

	statuses := pub.statusEvents()
	require.Len(t, statuses, 2)
	assert.Equal(t, protocol.StatusOnline, statuses[0].Status)
	assert.Equal(t, protocol.StatusOffline, statuses[1].Status)
}

func TestDisconnectClearsTyping(t *testing.T) {
	pub := &fakePublisher{}
	tr, _ := newTestTracker(pub, time.Now())
	alice := uuid.New()

	tr.Connected(alice)
	tr.Typing(alice, "c1")
	tr.Disconnected(alice)

	events := pub.typingEvents()
	require.Len(t, events, 2)
	assert.False(t, events[1].IsTyping)
	assert.Equal(t, 0, tr.Sweep(time.Now().Add(time.Minute)))
}

func TestTypingEventsSkipOwnConnections(t *testing.T) {
	router := fanout.NewRouter(fanout.NewRegistry(), fanout.Config{}, nil, nil)
	alice, bob := uuid.New(), uuid.New()
	ac := fanout.NewConn(uuid.New(), alice, 8)
	bc := fanout.NewConn(uuid.New(), bob, 8)
	router.Registry().Add(ac)
	router.Registry().Add(bc)
	router.Registry().Subscribe(ac, fanout.ChannelScope("c1"))
	router.Registry().Subscribe(bc, fanout.ChannelScope("c1"))

	tr := NewTracker(router, Config{})
	tr.Typing(alice, "c1")

	assert.Len(t, ac.Outbound(), 0)
	assert.Len(t, bc.Outbound(), 1)
}
