package websocket

import (
	"context"
	"errors"
	"time"

	"chatserver-be/internal/model"
	"chatserver-be/internal/pkg/logger"
	"chatserver-be/internal/pkg/metrics"
	"chatserver-be/internal/service"
	"chatserver-be/pkg/fanout"
	"chatserver-be/pkg/presence"
	"chatserver-be/pkg/protocol"
	"chatserver-be/pkg/ratelimit"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	DefaultIdleTimeout = 60 * time.Second
	DefaultSendBuffer  = 256

	intentTimeout = 10 * time.Second
)

// Error codes sent back to the originating connection.
const (
	CodeInvalidIntent  = "invalid_intent"
	CodeRateLimited    = "rate_limited"
	CodeForbidden      = "forbidden"
	CodeThreadNotFound = "thread_not_found"
	CodeLLMDisabled    = "llm_disabled"
	CodeMessageFailed  = "message_failed"
	CodeQueryFailed    = "query_failed"
	CodeInternal       = "internal_error"
)

type QuerySubmitter interface {
	Submit(ctx context.Context, principal, threadID uuid.UUID, text string) (uuid.UUID, error)
}

type MessagePoster interface {
	Post(ctx context.Context, author, channelID uuid.UUID, threadID *uuid.UUID, content string) (*model.Message, error)
}

// MembershipChecker decides whether a principal may subscribe to a scope.
type MembershipChecker interface {
	CanJoinChannel(ctx context.Context, principal, channelID uuid.UUID) (bool, error)
	CanJoinThread(ctx context.Context, principal, threadID uuid.UUID) (bool, error)
}

type Config struct {
	IdleTimeout time.Duration
	SendBuffer  int
	// IntentRate throttles inbound frames per connection.
	IntentRate ratelimit.Config
}

type Deps struct {
	Router  *fanout.Router
	Tracker *presence.Tracker
	Queries QuerySubmitter
	Posts   MessagePoster
	// Members may be nil, in which case every join is allowed.
	Members MembershipChecker
	Metrics *metrics.Metrics
	Logger  logger.ILogger
}

// Hub binds websocket clients to the fanout router and dispatches their intents.
type Hub struct {
	router  *fanout.Router
	tracker *presence.Tracker
	queries QuerySubmitter
	posts   MessagePoster
	members MembershipChecker
	metrics *metrics.Metrics
	logger  logger.ILogger
	cfg     Config
}

func NewHub(deps Deps, cfg Config) *Hub {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	h := &Hub{
		router:  deps.Router,
		tracker: deps.Tracker,
		queries: deps.Queries,
		posts:   deps.Posts,
		members: deps.Members,
		metrics: deps.Metrics,
		logger:  log,
		cfg:     cfg,
	}
	// The router has already removed an evicted connection; the write pump
	// sees Done() and closes the socket.
	h.router.OnEvict(func(c *fanout.Conn) {
		h.tracker.Disconnected(c.Principal)
		h.metrics.ConnectionClosed()
	})
	return h
}

func (h *Hub) Router() *fanout.Router { return h.router }

// Run drives the typing expiry sweep until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.tracker.Run(ctx)
}

// NewClient creates an unregistered client. ws may be nil when the caller
// drives the client without a socket.
func (h *Hub) NewClient(userID uuid.UUID, ws *websocket.Conn) *Client {
	c := &Client{
		hub:       h,
		ws:        ws,
		conn:      fanout.NewConn(uuid.New(), userID, h.cfg.SendBuffer),
		UserID:    userID,
		CreatedAt: time.Now(),
		limiter:   ratelimit.NewBucket(h.cfg.IntentRate),
	}
	c.touch()
	return c
}

// Register adds the client to the router and the presence scope.
func (h *Hub) Register(c *Client) {
	registry := h.router.Registry()
	if !registry.Add(c.conn) {
		return
	}
	registry.Subscribe(c.conn, fanout.PresenceScope)
	h.tracker.Connected(c.UserID)
	h.metrics.ConnectionOpened()
	h.logger.Info("Hub", "Client registered", map[string]interface{}{
		"user_id": c.UserID.String(),
		"conn_id": c.conn.ID.String(),
	})
}

// Unregister is idempotent and safe to race with eviction.
func (h *Hub) Unregister(c *Client) {
	if _, removed := h.router.Registry().RemoveConnection(c.conn.ID); !removed {
		return
	}
	h.tracker.Disconnected(c.UserID)
	h.metrics.ConnectionClosed()
	h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
		"user_id": c.UserID.String(),
		"conn_id": c.conn.ID.String(),
	})
}

// HandleIntent processes one inbound frame. Every failure is reported to the
// originating connection only.
func (h *Hub) HandleIntent(c *Client, raw []byte) {
	c.touch()
	if !ratelimit.Allow(c.limiter) {
		h.reply(c, protocol.Error{Code: CodeRateLimited, Message: "too many requests"})
		return
	}

	intent, err := protocol.DecodeIntent(raw)
	if err != nil {
		h.reply(c, protocol.Error{Code: CodeInvalidIntent, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	switch body := intent.Body.(type) {
	case *protocol.Ping:
		h.reply(c, protocol.Pong{})

	case *protocol.JoinChannel:
		channelID, _ := uuid.Parse(body.ChannelID)
		if h.join(ctx, c, intent.Type, fanout.ChannelScope(body.ChannelID), h.channelCheck(channelID)) {
			h.reply(c, protocol.ChannelJoined{ChannelID: body.ChannelID})
		}

	case *protocol.LeaveChannel:
		h.router.Registry().Unsubscribe(c.conn.ID, fanout.ChannelScope(body.ChannelID))
		h.tracker.StopTyping(c.UserID, body.ChannelID)
		h.reply(c, protocol.ChannelLeft{ChannelID: body.ChannelID})

	case *protocol.JoinThread:
		threadID, _ := uuid.Parse(body.ThreadID)
		if h.join(ctx, c, intent.Type, fanout.ThreadScope(body.ThreadID), h.threadCheck(threadID)) {
			h.reply(c, protocol.ThreadJoined{ThreadID: body.ThreadID})
		}

	case *protocol.LeaveThread:
		h.router.Registry().Unsubscribe(c.conn.ID, fanout.ThreadScope(body.ThreadID))
		h.reply(c, protocol.ThreadLeft{ThreadID: body.ThreadID})

	case *protocol.Typing:
		channelID, _ := uuid.Parse(body.ChannelID)
		if !h.join(ctx, c, intent.Type, fanout.ChannelScope(body.ChannelID), h.channelCheck(channelID)) {
			return
		}
		if body.IsTyping {
			h.tracker.Typing(c.UserID, body.ChannelID)
		} else {
			h.tracker.StopTyping(c.UserID, body.ChannelID)
		}

	case *protocol.SendMessage:
		h.handleSendMessage(ctx, c, intent.Type, body)

	case *protocol.LLMQuery:
		h.handleLLMQuery(ctx, c, intent.Type, body)
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, kind protocol.Kind, body *protocol.SendMessage) {
	channelID, _ := uuid.Parse(body.ChannelID)
	if !h.join(ctx, c, kind, fanout.ChannelScope(body.ChannelID), h.channelCheck(channelID)) {
		return
	}

	var threadID *uuid.UUID
	if body.ThreadID != "" {
		id, _ := uuid.Parse(body.ThreadID)
		if !h.join(ctx, c, kind, fanout.ThreadScope(body.ThreadID), h.threadCheck(id)) {
			return
		}
		threadID = &id
	}

	if _, err := h.posts.Post(ctx, c.UserID, channelID, threadID, body.Message); err != nil {
		h.logger.Warn("Hub", "Failed to post message", map[string]interface{}{
			"user_id":    c.UserID.String(),
			"channel_id": body.ChannelID,
			"error":      err.Error(),
		})
		h.reply(c, protocol.Error{Code: CodeMessageFailed, Message: "message could not be sent", Intent: kind})
		return
	}
	h.tracker.StopTyping(c.UserID, body.ChannelID)
}

func (h *Hub) handleLLMQuery(ctx context.Context, c *Client, kind protocol.Kind, body *protocol.LLMQuery) {
	threadID, _ := uuid.Parse(body.ThreadID)
	if !h.join(ctx, c, kind, fanout.ThreadScope(body.ThreadID), h.threadCheck(threadID)) {
		return
	}

	if _, err := h.queries.Submit(ctx, c.UserID, threadID, body.Query); err != nil {
		code, msg := queryErrorCode(err)
		if code == CodeQueryFailed {
			h.logger.Error("Hub", "Query submission failed", map[string]interface{}{
				"user_id":   c.UserID.String(),
				"thread_id": body.ThreadID,
				"error":     err.Error(),
			})
		}
		h.reply(c, protocol.Error{Code: code, Message: msg, Intent: kind})
	}
}

func queryErrorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		return CodeThreadNotFound, err.Error()
	case errors.Is(err, service.ErrLLMDisabled):
		return CodeLLMDisabled, err.Error()
	case errors.Is(err, service.ErrNotChannelMember):
		return CodeForbidden, err.Error()
	case errors.Is(err, service.ErrEmptyQuery), errors.Is(err, service.ErrQueryTooLong):
		return CodeInvalidIntent, err.Error()
	case errors.Is(err, service.ErrRateLimited):
		return CodeRateLimited, err.Error()
	default:
		return CodeQueryFailed, "query could not be submitted"
	}
}

type accessCheck func(ctx context.Context, principal uuid.UUID) (bool, error)

func (h *Hub) channelCheck(channelID uuid.UUID) accessCheck {
	if h.members == nil {
		return nil
	}
	return func(ctx context.Context, principal uuid.UUID) (bool, error) {
		return h.members.CanJoinChannel(ctx, principal, channelID)
	}
}

func (h *Hub) threadCheck(threadID uuid.UUID) accessCheck {
	if h.members == nil {
		return nil
	}
	return func(ctx context.Context, principal uuid.UUID) (bool, error) {
		return h.members.CanJoinThread(ctx, principal, threadID)
	}
}

// join subscribes c to scope unless it already holds it, checking access
// first. It reports whether the connection ends up subscribed.
func (h *Hub) join(ctx context.Context, c *Client, kind protocol.Kind, scope fanout.Scope, check accessCheck) bool {
	registry := h.router.Registry()
	if registry.Subscribed(c.conn.ID, scope) {
		return true
	}
	if check != nil {
		ok, err := check(ctx, c.UserID)
		if err != nil {
			h.logger.Error("Hub", "Membership check failed", map[string]interface{}{
				"user_id": c.UserID.String(),
				"scope":   string(scope),
				"error":   err.Error(),
			})
			h.reply(c, protocol.Error{Code: CodeInternal, Message: "could not verify membership", Intent: kind})
			return false
		}
		if !ok {
			h.reply(c, protocol.Error{Code: CodeForbidden, Message: "not allowed to join " + string(scope), Intent: kind})
			return false
		}
	}
	registry.Subscribe(c.conn, scope)
	return registry.Subscribed(c.conn.ID, scope)
}

func (h *Hub) reply(c *Client, payload protocol.Payload) {
	h.router.Unicast(c.conn.ID, payload)
}
