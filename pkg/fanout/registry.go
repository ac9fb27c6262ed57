package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scope is the unit of subscription and delivery.
type Scope string

// PresenceScope is joined implicitly by every connection on registration.
const PresenceScope Scope = "presence"

func ChannelScope(channelID string) Scope { return Scope("channel:" + channelID) }
func ThreadScope(threadID string) Scope   { return Scope("thread:" + threadID) }

// Conn is the router's view of one live connection: an identity plus a
// bounded outbound queue. The transport drains Outbound() and stops when Done() closes.
type Conn struct {
	ID        uuid.UUID
	Principal uuid.UUID

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu guards scopes and closed; lock order is Conn.mu before scopeEntry.mu.
	mu     sync.Mutex
	scopes map[Scope]struct{}
	closed bool

	consecutiveDrops atomic.Int64
	drops            atomic.Int64
	evicting         atomic.Bool
}

func NewConn(id, principal uuid.UUID, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{
		ID:        id,
		Principal: principal,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		scopes:    make(map[Scope]struct{}),
	}
}

func (c *Conn) Outbound() <-chan []byte { return c.send }
func (c *Conn) Done() <-chan struct{}   { return c.done }

// Drops is the total number of events dropped for this connection.
func (c *Conn) Drops() int64 { return c.drops.Load() }

// ConsecutiveDrops resets to zero on every successful enqueue.
func (c *Conn) ConsecutiveDrops() int64 { return c.consecutiveDrops.Load() }

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// offer enqueues without blocking. Closed connections swallow the event.
func (c *Conn) offer(data []byte) (delivered, dropped bool) {
	if c.isClosed() {
		return false, false
	}
	select {
	case c.send <- data:
		c.consecutiveDrops.Store(0)
		return true, false
	default:
		c.drops.Add(1)
		c.consecutiveDrops.Add(1)
		return false, true
	}
}

// shut closes Done. The send channel is never closed so late offers cannot panic.
func (c *Conn) shut() {
	c.closeOnce.Do(func() { close(c.done) })
}

type scopeEntry struct {
	mu      sync.Mutex
	seq     uint64
	members map[uuid.UUID]*Conn
}

// Registry maps connections to scopes and back. Each scope has its own lock;
// entries are never deleted so sequence numbers stay monotonic for the
// lifetime of the process.
type Registry struct {
	scopes sync.Map // Scope -> *scopeEntry
	conns  sync.Map // uuid.UUID -> *Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) entry(s Scope) *scopeEntry {
	if e, ok := r.scopes.Load(s); ok {
		return e.(*scopeEntry)
	}
	e, _ := r.scopes.LoadOrStore(s, &scopeEntry{members: make(map[uuid.UUID]*Conn)})
	return e.(*scopeEntry)
}

// Add makes the connection known to the registry. Returns false if the ID is already registered.
func (r *Registry) Add(c *Conn) bool {
	_, loaded := r.conns.LoadOrStore(c.ID, c)
	return !loaded
}

func (r *Registry) Conn(id uuid.UUID) (*Conn, bool) {
	c, ok := r.conns.Load(id)
	if !ok {
		return nil, false
	}
	return c.(*Conn), true
}

// Subscribe is idempotent. It reports whether a new subscription was created.
// Subscribing a removed connection is a no-op.
func (r *Registry) Subscribe(c *Conn, s Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.scopes[s]; ok {
		return false
	}
	c.scopes[s] = struct{}{}

	e := r.entry(s)
	e.mu.Lock()
	e.members[c.ID] = c
	e.mu.Unlock()
	return true
}

// Unsubscribe is idempotent; removing an absent subscription is not an error.
func (r *Registry) Unsubscribe(connID uuid.UUID, s Scope) bool {
	c, ok := r.Conn(connID)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scopes[s]; !ok {
		return false
	}
	delete(c.scopes, s)

	if e, ok := r.scopes.Load(s); ok {
		entry := e.(*scopeEntry)
		entry.mu.Lock()
		delete(entry.members, connID)
		entry.mu.Unlock()
	}
	return true
}

// Subscribed reports whether the connection currently holds scope.
func (r *Registry) Subscribed(connID uuid.UUID, s Scope) bool {
	c, ok := r.Conn(connID)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok = c.scopes[s]
	return ok
}

// SubscribersOf returns a snapshot of the scope's connections.
func (r *Registry) SubscribersOf(s Scope) []*Conn {
	e, ok := r.scopes.Load(s)
	if !ok {
		return nil
	}
	entry := e.(*scopeEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]*Conn, 0, len(entry.members))
	for _, c := range entry.members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) ScopesOf(connID uuid.UUID) []Scope {
	c, ok := r.Conn(connID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Scope, 0, len(c.scopes))
	for s := range c.scopes {
		out = append(out, s)
	}
	return out
}

// RemoveConnection cascades to every subscription of the connection and
// closes its Done channel. Safe to call concurrently with a fanout to the
// same connection and safe to call more than once; only the first call
// returns the connection.
func (r *Registry) RemoveConnection(connID uuid.UUID) (*Conn, bool) {
	v, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return nil, false
	}
	c := v.(*Conn)
	c.shut()

	c.mu.Lock()
	c.closed = true
	scopes := c.scopes
	c.scopes = make(map[Scope]struct{})
	c.mu.Unlock()

	for s := range scopes {
		if e, ok := r.scopes.Load(s); ok {
			entry := e.(*scopeEntry)
			entry.mu.Lock()
			delete(entry.members, connID)
			entry.mu.Unlock()
		}
	}
	return c, true
}

// ConnsOf lists live connections owned by a principal.
func (r *Registry) ConnsOf(principal uuid.UUID) []*Conn {
	var out []*Conn
	r.conns.Range(func(_, v any) bool {
		if c := v.(*Conn); c.Principal == principal {
			out = append(out, c)
		}
		return true
	})
	return out
}
