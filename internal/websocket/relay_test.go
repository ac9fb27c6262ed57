package websocket

import (
	"encoding/json"
	"testing"

	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/protocol"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_MirrorQueuesEnvelope(t *testing.T) {
	router := fanout.NewRouter(fanout.NewRegistry(), fanout.Config{}, nil, nil)
	relay := NewRedisRelay(nil, router, nil)
	exclude := uuid.New()

	relay.Mirror(fanout.ChannelScope("c1"), protocol.TypingIndicator{ChannelID: "c1", IsTyping: true}, exclude)

	env := <-relay.out
	assert.Equal(t, relay.instanceID, env.Origin)
	assert.Equal(t, "channel:c1", env.Scope)
	assert.Equal(t, protocol.KindTypingIndicator, env.Kind)
	assert.Equal(t, exclude.String(), env.Exclude)
}

func TestRedisRelay_HandleRemote(t *testing.T) {
	router := fanout.NewRouter(fanout.NewRegistry(), fanout.Config{}, nil, nil)
	relay := NewRedisRelay(nil, router, nil)
	router.SetRelay(relay)

	typer := uuid.New()
	typerConn := fanout.NewConn(uuid.New(), typer, 8)
	listener := fanout.NewConn(uuid.New(), uuid.New(), 8)
	for _, c := range []*fanout.Conn{typerConn, listener} {
		router.Registry().Add(c)
		router.Registry().Subscribe(c, fanout.ChannelScope("c1"))
	}

	payload, _ := json.Marshal(protocol.TypingIndicator{ChannelID: "c1", UserID: typer.String(), IsTyping: true})
	remote := func(origin string) []byte {
		data, err := json.Marshal(relayEnvelope{
			Origin:  origin,
			Scope:   "channel:c1",
			Kind:    protocol.KindTypingIndicator,
			Exclude: typer.String(),
			Payload: payload,
		})
		require.NoError(t, err)
		return data
	}

	relay.handleRemote(remote(relay.instanceID))
	assert.Len(t, listener.Outbound(), 0, "own events are ignored")

	relay.handleRemote(remote("other-instance"))
	assert.Len(t, listener.Outbound(), 1)
	assert.Len(t, typerConn.Outbound(), 0, "excluded principal is honoured")
	assert.Len(t, relay.out, 0, "relayed events are not mirrored again")

	relay.handleRemote([]byte(`{"origin":"x","kind":"error","payload":{}}`))
	assert.Len(t, listener.Outbound(), 1)
}
