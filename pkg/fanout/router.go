// Package fanout tracks which connections listen to which channels and
// threads, and delivers typed events to exactly that set.
package fanout

import (
	"time"

	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
)

const DefaultMaxConsecutiveDrops = 32

// Event is immutable once published.
type Event struct {
	Scope     Scope
	Seq       uint64
	Kind      protocol.Kind
	Payload   protocol.Payload
	CreatedAt time.Time

	data []byte
}

// Bytes returns the encoded wire frame.
func (e *Event) Bytes() []byte { return e.data }

// DeliveryReport describes a single Publish.
type DeliveryReport struct {
	Event      *Event
	Recipients int
	Delivered  int
	Dropped    int
}

// Relay mirrors local publishes to other instances.
type Relay interface {
	Mirror(scope Scope, payload protocol.Payload, exclude uuid.UUID)
}

type Config struct {
	// MaxConsecutiveDrops is how many drops in a row a connection may suffer
	// before it is evicted.
	MaxConsecutiveDrops int
}

type PublishOption func(*publishOptions)

type publishOptions struct {
	exclude uuid.UUID
	local   bool
}

// ExcludePrincipal skips every connection owned by principal.
func ExcludePrincipal(principal uuid.UUID) PublishOption {
	return func(o *publishOptions) { o.exclude = principal }
}

// LocalOnly suppresses mirroring to the relay. Used for events that arrived from the relay.
func LocalOnly() PublishOption {
	return func(o *publishOptions) { o.local = true }
}

type Router struct {
	registry *Registry
	cfg      Config
	relay    Relay
	onEvict  func(*Conn)
	metrics  *metrics.Metrics
	logger   logger.ILogger
	now      func() time.Time
}

func NewRouter(registry *Registry, cfg Config, m *metrics.Metrics, log logger.ILogger) *Router {
	if cfg.MaxConsecutiveDrops <= 0 {
		cfg.MaxConsecutiveDrops = DefaultMaxConsecutiveDrops
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Router{
		registry: registry,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

func (r *Router) Registry() *Registry { return r.registry }

func (r *Router) SetRelay(relay Relay) { r.relay = relay }

// OnEvict registers the callback run (in its own goroutine) after a slow
// connection has been removed from the registry.
func (r *Router) OnEvict(fn func(*Conn)) { r.onEvict = fn }

// Publish delivers payload to every connection subscribed to scope at the
// moment of the call. It never blocks on a recipient.
func (r *Router) Publish(scope Scope, payload protocol.Payload, opts ...PublishOption) DeliveryReport {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	report := r.publish(scope, payload, o.exclude)

	if !o.local && r.relay != nil {
		r.relay.Mirror(scope, payload, o.exclude)
	}
	return report
}

func (r *Router) publish(scope Scope, payload protocol.Payload, exclude uuid.UUID) DeliveryReport {
	v, ok := r.registry.scopes.Load(scope)
	if !ok {
		return DeliveryReport{}
	}
	entry := v.(*scopeEntry)

	// The scope lock covers seq assignment and the non-blocking enqueue so
	// two publishes to one scope reach every connection in seq order.
	entry.mu.Lock()
	entry.seq++
	evt := &Event{
		Scope:     scope,
		Seq:       entry.seq,
		Kind:      payload.Kind(),
		Payload:   payload,
		CreatedAt: r.now(),
	}
	data, err := protocol.Encode(payload, string(scope), evt.Seq, evt.CreatedAt)
	if err != nil {
		entry.mu.Unlock()
		r.logger.Error("Router", "Failed to encode event", map[string]interface{}{"scope": scope, "kind": evt.Kind, "error": err.Error()})
		return DeliveryReport{Event: evt}
	}
	evt.data = data

	report := DeliveryReport{Event: evt}
	var slow []*Conn
	for _, c := range entry.members {
		if exclude != uuid.Nil && c.Principal == exclude {
			continue
		}
		report.Recipients++
		delivered, dropped := c.offer(data)
		if delivered {
			report.Delivered++
		}
		if dropped {
			report.Dropped++
			if c.ConsecutiveDrops() > int64(r.cfg.MaxConsecutiveDrops) {
				slow = append(slow, c)
			}
		}
	}
	entry.mu.Unlock()

	r.metrics.Delivered(string(evt.Kind), report.Delivered)
	r.metrics.Dropped(report.Dropped)
	for _, c := range slow {
		r.evict(c)
	}
	return report
}

// Unicast sends a scope-less event to one connection; used for replies that
// must never be broadcast (errors, acks, pong).
func (r *Router) Unicast(connID uuid.UUID, payload protocol.Payload) bool {
	c, ok := r.registry.Conn(connID)
	if !ok {
		return false
	}
	data, err := protocol.Encode(payload, "", 0, r.now())
	if err != nil {
		r.logger.Error("Router", "Failed to encode direct event", map[string]interface{}{"kind": payload.Kind(), "error": err.Error()})
		return false
	}
	delivered, _ := c.offer(data)
	if delivered {
		r.metrics.Delivered(string(payload.Kind()), 1)
	}
	return delivered
}

func (r *Router) evict(c *Conn) {
	if !c.evicting.CompareAndSwap(false, true) {
		return
	}
	if _, removed := r.registry.RemoveConnection(c.ID); !removed {
		return
	}
	r.metrics.Evicted()
	r.logger.Warn("Router", "Evicting slow connection", map[string]interface{}{
		"conn_id": c.ID, "user_id": c.Principal, "drops": c.Drops(),
	})
	if r.onEvict != nil {
		go r.onEvict(c)
	}
}
