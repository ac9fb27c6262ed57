// Package presence derives online/offline and typing signals and emits them
// through the fanout router.
package presence

import (
	"context"
	"sync"
	"time"

	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
)

const (
	DefaultTypingTimeout = 5 * time.Second
	DefaultSweepInterval = time.Second
)

// Publisher is the slice of the router the tracker needs.
type Publisher interface {
	Publish(scope fanout.Scope, payload protocol.Payload, opts ...fanout.PublishOption) fanout.DeliveryReport
}

type Config struct {
	TypingTimeout time.Duration
	SweepInterval time.Duration
}

type pair struct {
	principal uuid.UUID
	channelID string
}

// Tracker holds per-(principal, channel) typing deadlines and per-principal
// connection counts. Expiry is driven by Sweep rather than per-pair timers.
type Tracker struct {
	pub Publisher
	cfg Config
	now func() time.Time

	// mu is held across Publish so the events for one pair leave in the
	// order their transitions happened. Publish never blocks.
	mu     sync.Mutex
	typing map[pair]time.Time
	online map[uuid.UUID]int
}

func NewTracker(pub Publisher, cfg Config) *Tracker {
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = DefaultTypingTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Tracker{
		pub:    pub,
		cfg:    cfg,
		now:    time.Now,
		typing: make(map[pair]time.Time),
		online: make(map[uuid.UUID]int),
	}
}

// Connected records a new connection for principal. The first one emits "online".
func (t *Tracker) Connected(principal uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.online[principal]++
	if t.online[principal] == 1 {
		t.pub.Publish(fanout.PresenceScope, protocol.UserStatus{
			UserID: principal.String(),
			Status: protocol.StatusOnline,
		}, fanout.ExcludePrincipal(principal))
	}
}

// Disconnected records a closed connection. When the last one goes, any
// typing state is cleared and "offline" is emitted exactly once.
func (t *Tracker) Disconnected(principal uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.online[principal]
	if !ok {
		return
	}
	if n > 1 {
		t.online[principal] = n - 1
		return
	}
	delete(t.online, principal)

	for p := range t.typing {
		if p.principal == principal {
			delete(t.typing, p)
			t.emitTyping(p, false)
		}
	}
	t.pub.Publish(fanout.PresenceScope, protocol.UserStatus{
		UserID: principal.String(),
		Status: protocol.StatusOffline,
	}, fanout.ExcludePrincipal(principal))
}

func (t *Tracker) IsOnline(principal uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[principal] > 0
}

// Typing moves the pair to typing (emitting once on idle->typing) and re-arms its deadline.
func (t *Tracker) Typing(principal uuid.UUID, channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := pair{principal: principal, channelID: channelID}
	_, already := t.typing[p]
	t.typing[p] = t.now().Add(t.cfg.TypingTimeout)
	if !already {
		t.emitTyping(p, true)
	}
}

// StopTyping is the explicit typing->idle transition; a no-op when idle.
func (t *Tracker) StopTyping(principal uuid.UUID, channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := pair{principal: principal, channelID: channelID}
	if _, ok := t.typing[p]; !ok {
		return
	}
	delete(t.typing, p)
	t.emitTyping(p, false)
}

func (t *Tracker) IsTyping(principal uuid.UUID, channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[pair{principal: principal, channelID: channelID}]
	return ok
}

// Sweep expires every pair whose deadline is at or before now and returns
// how many expired.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	expired := 0
	for p, deadline := range t.typing {
		if !deadline.After(now) {
			delete(t.typing, p)
			t.emitTyping(p, false)
			expired++
		}
	}
	return expired
}

// Run sweeps on a ticker until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}

func (t *Tracker) emitTyping(p pair, isTyping bool) {
	t.pub.Publish(fanout.ChannelScope(p.channelID), protocol.TypingIndicator{
		ChannelID: p.channelID,
		UserID:    p.principal.String(),
		IsTyping:  isTyping,
	}, fanout.ExcludePrincipal(p.principal))
}
