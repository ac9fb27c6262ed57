package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIntent(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType Kind
		wantErr  bool
	}{
		{"join channel", `{"type":"join_channel","channel_id":"6f1c2a3e-58a1-4c0e-9d4f-2b7a3c1d9e10"}`, IntentJoinChannel, false},
		{"join channel bad id", `{"type":"join_channel","channel_id":"general"}`, "", true},
		{"typing", `{"type":"typing","channel_id":"6f1c2a3e-58a1-4c0e-9d4f-2b7a3c1d9e10","is_typing":true}`, IntentTyping, false},
		{"ping", `{"type":"ping"}`, IntentPing, false},
		{"llm query", `{"type":"llm_query","thread_id":"6f1c2a3e-58a1-4c0e-9d4f-2b7a3c1d9e10","query":"total orders"}`, IntentLLMQuery, false},
		{"llm query empty", `{"type":"llm_query","thread_id":"6f1c2a3e-58a1-4c0e-9d4f-2b7a3c1d9e10","query":""}`, "", true},
		{"unknown", `{"type":"shout"}`, "", true},
		{"missing type", `{"channel_id":"x"}`, "", true},
		{"not json", `hello`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := DecodeIntent([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, intent.Type)
		})
	}
}

func TestEncodeFlattensEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := Encode(TypingIndicator{ChannelID: "c1", UserID: "u1", IsTyping: true}, "channel:c1", 7, at)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "typing_indicator", got["type"])
	assert.Equal(t, "channel:c1", got["scope"])
	assert.Equal(t, float64(7), got["seq"])
	assert.Equal(t, "c1", got["channel_id"])
	assert.Equal(t, true, got["is_typing"])
}

func TestDecodePayloadRoundTripForRelay(t *testing.T) {
	in := UserStatus{UserID: "u1", Status: StatusOffline}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := DecodePayload(KindUserStatus, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodePayload(KindPong, []byte(`{}`))
	assert.Error(t, err)
}
