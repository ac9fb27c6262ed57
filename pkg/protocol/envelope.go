package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind is the wire-level "type" discriminator.
type Kind string

// Inbound intents (client -> server)
const (
	IntentJoinChannel  Kind = "join_channel"
	IntentLeaveChannel Kind = "leave_channel"
	IntentJoinThread   Kind = "join_thread"
	IntentLeaveThread  Kind = "leave_thread"
	IntentTyping       Kind = "typing"
	IntentPing         Kind = "ping"
	IntentSendMessage  Kind = "new_message"
	IntentLLMQuery     Kind = "llm_query"
)

// Outbound events (server -> client)
const (
	KindNewMessage      Kind = "new_message"
	KindTypingIndicator Kind = "typing_indicator"
	KindUserStatus      Kind = "user_status"
	KindLLMResponse     Kind = "llm_response"
	KindError           Kind = "error"
	KindPong            Kind = "pong"
	KindChannelJoined   Kind = "channel_joined"
	KindChannelLeft     Kind = "channel_left"
	KindThreadJoined    Kind = "thread_joined"
	KindThreadLeft      Kind = "thread_left"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Payload is implemented by every outbound event body.
type Payload interface {
	Kind() Kind
}

type MessageBody struct {
	ID          string          `json:"id"`
	Content     string          `json:"content"`
	AuthorID    string          `json:"author_id"`
	MessageType string          `json:"message_type,omitempty"`
	LLMContext  json.RawMessage `json:"llm_context,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type NewMessage struct {
	ChannelID string      `json:"channel_id"`
	ThreadID  string      `json:"thread_id,omitempty"`
	UserID    string      `json:"user_id"`
	Message   MessageBody `json:"message"`
}

type TypingIndicator struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

type UserStatus struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// LLMResponse carries either Results or Error, never both.
type LLMResponse struct {
	ThreadID      string           `json:"thread_id"`
	RequestID     string           `json:"request_id"`
	UserID        string           `json:"user_id"`
	Query         string           `json:"query"`
	SQL           string           `json:"sql,omitempty"`
	Status        string           `json:"status"`
	Columns       []string         `json:"columns,omitempty"`
	Results       []map[string]any `json:"results,omitempty"`
	RowCount      int              `json:"row_count"`
	ExecutionTime float64          `json:"execution_time"`
	Message       string           `json:"message,omitempty"`
	Error         string           `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Intent  Kind   `json:"intent,omitempty"`
}

type Pong struct{}

type ChannelJoined struct {
	ChannelID string `json:"channel_id"`
}

type ChannelLeft struct {
	ChannelID string `json:"channel_id"`
}

type ThreadJoined struct {
	ThreadID string `json:"thread_id"`
}

type ThreadLeft struct {
	ThreadID string `json:"thread_id"`
}

func (NewMessage) Kind() Kind      { return KindNewMessage }
func (TypingIndicator) Kind() Kind { return KindTypingIndicator }
func (UserStatus) Kind() Kind      { return KindUserStatus }
func (LLMResponse) Kind() Kind     { return KindLLMResponse }
func (Error) Kind() Kind           { return KindError }
func (Pong) Kind() Kind            { return KindPong }
func (ChannelJoined) Kind() Kind   { return KindChannelJoined }
func (ChannelLeft) Kind() Kind     { return KindChannelLeft }
func (ThreadJoined) Kind() Kind    { return KindThreadJoined }
func (ThreadLeft) Kind() Kind      { return KindThreadLeft }

// Encode flattens a payload into a single JSON object with the envelope fields
// (type, scope, seq, timestamp) alongside the payload's own fields.
func Encode(p Payload, scope string, seq uint64, at time.Time) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s payload: %w", p.Kind(), err)
	}

	fields["type"], _ = json.Marshal(p.Kind())
	fields["timestamp"], _ = json.Marshal(at.UTC().Format(time.RFC3339Nano))
	if scope != "" {
		fields["scope"], _ = json.Marshal(scope)
	}
	if seq > 0 {
		fields["seq"], _ = json.Marshal(seq)
	}
	return json.Marshal(fields)
}

// DecodePayload rebuilds an outbound payload from its kind and raw JSON body.
// Used by the cross-instance relay.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindNewMessage:
		var v NewMessage
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindTypingIndicator:
		var v TypingIndicator
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindUserStatus:
		var v UserStatus
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindLLMResponse:
		var v LLMResponse
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("kind %q is not relayable", kind)
	}
	return p, nil
}

// Inbound intents

type JoinChannel struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
}

type LeaveChannel struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
}

type JoinThread struct {
	ThreadID string `json:"thread_id" validate:"required,uuid"`
}

type LeaveThread struct {
	ThreadID string `json:"thread_id" validate:"required,uuid"`
}

type Typing struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
	IsTyping  bool   `json:"is_typing"`
}

type Ping struct{}

type SendMessage struct {
	ChannelID string `json:"channel_id" validate:"required,uuid"`
	ThreadID  string `json:"thread_id" validate:"omitempty,uuid"`
	Message   string `json:"message" validate:"required,max=8000"`
}

type LLMQuery struct {
	ThreadID string `json:"thread_id" validate:"required,uuid"`
	Query    string `json:"query" validate:"required,max=2000"`
}

// Intent is a decoded, validated inbound frame. Body holds one of the
// intent structs above.
type Intent struct {
	Type Kind
	Body any
}

var validate = validator.New()

// DecodeIntent parses and validates a client frame.
func DecodeIntent(raw []byte) (Intent, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Intent{}, fmt.Errorf("malformed frame: %w", err)
	}

	var body any
	switch head.Type {
	case IntentJoinChannel:
		body = &JoinChannel{}
	case IntentLeaveChannel:
		body = &LeaveChannel{}
	case IntentJoinThread:
		body = &JoinThread{}
	case IntentLeaveThread:
		body = &LeaveThread{}
	case IntentTyping:
		body = &Typing{}
	case IntentPing:
		return Intent{Type: IntentPing, Body: &Ping{}}, nil
	case IntentSendMessage:
		body = &SendMessage{}
	case IntentLLMQuery:
		body = &LLMQuery{}
	case "":
		return Intent{}, fmt.Errorf("missing type")
	default:
		return Intent{}, fmt.Errorf("unknown type %q", head.Type)
	}

	if err := json.Unmarshal(raw, body); err != nil {
		return Intent{}, fmt.Errorf("malformed %s: %w", head.Type, err)
	}
	if err := validate.Struct(body); err != nil {
		return Intent{}, fmt.Errorf("invalid %s: %w", head.Type, err)
	}
	return Intent{Type: head.Type, Body: body}, nil
}
