package websocket

import (
	"context"
	"encoding/json"

	"chatserver-be/internal/pkg/logger"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ClusterChannel     = "cluster_events"
	defaultRelayBuffer = 1024
)

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Scope   string          `json:"scope"`
	Kind    protocol.Kind   `json:"kind"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay mirrors local publishes to every other instance over redis
// pub/sub and republishes theirs locally.
type RedisRelay struct {
	rdb        *redis.Client
	router     *fanout.Router
	instanceID string
	channel    string
	out        chan relayEnvelope
	logger     logger.ILogger
}

var _ fanout.Relay = (*RedisRelay)(nil)

func NewRedisRelay(rdb *redis.Client, router *fanout.Router, log logger.ILogger) *RedisRelay {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisRelay{
		rdb:        rdb,
		router:     router,
		instanceID: uuid.NewString(),
		channel:    ClusterChannel,
		out:        make(chan relayEnvelope, defaultRelayBuffer),
		logger:     log,
	}
}

// Mirror queues the event for the publish loop. It never blocks the router:
// when the queue is full the event stays local.
func (r *RedisRelay) Mirror(scope fanout.Scope, payload protocol.Payload, exclude uuid.UUID) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Relay", "Failed to marshal payload", map[string]interface{}{"kind": payload.Kind(), "error": err.Error()})
		return
	}
	env := relayEnvelope{
		Origin:  r.instanceID,
		Scope:   string(scope),
		Kind:    payload.Kind(),
		Payload: body,
	}
	if exclude != uuid.Nil {
		env.Exclude = exclude.String()
	}

	select {
	case r.out <- env:
	default:
		r.logger.Warn("Relay", "Relay queue full, event not mirrored", map[string]interface{}{"scope": string(scope), "kind": env.Kind})
	}
}

// Run publishes queued envelopes and consumes the cluster channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.out:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
				r.logger.Warn("Relay", "Failed to publish to redis", map[string]interface{}{"error": err.Error()})
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleRemote([]byte(msg.Payload))
		}
	}
}

// handleRemote delivers an event mirrored by another instance to local
// subscribers only.
func (r *RedisRelay) handleRemote(data []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("Relay", "Malformed cluster event", map[string]interface{}{"error": err.Error()})
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	payload, err := protocol.DecodePayload(env.Kind, env.Payload)
	if err != nil {
		r.logger.Warn("Relay", "Undecodable cluster event", map[string]interface{}{"kind": env.Kind, "error": err.Error()})
		return
	}

	opts := []fanout.PublishOption{fanout.LocalOnly()}
	if env.Exclude != "" {
		if id, err := uuid.Parse(env.Exclude); err == nil {
			opts = append(opts, fanout.ExcludePrincipal(id))
		}
	}
	r.router.Publish(fanout.Scope(env.Scope), payload, opts...)
}
