package controller

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"chatserver-be/internal/pkg/serverutils"
	"chatserver-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth struct{ id uuid.UUID }

func (a staticAuth) Authenticate(token string) (uuid.UUID, error) {
	if token != "good" {
		return uuid.Nil, serverutils.ErrInvalidToken
	}
	return a.id, nil
}

type fakeQueryService struct {
	err       error
	requestID uuid.UUID
	principal uuid.UUID
	threadID  uuid.UUID
	text      string
}

func (f *fakeQueryService) Submit(_ context.Context, principal, threadID uuid.UUID, text string) (uuid.UUID, error) {
	f.principal, f.threadID, f.text = principal, threadID, text
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return f.requestID, nil
}

func (f *fakeQueryService) Wait() {}

func newQueryApp(svc service.IQueryService, userID uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware(nil))
	NewQueryController(svc, staticAuth{id: userID}).RegisterRoutes(app.Group("/api"))
	return app
}

func TestQueryController_Submit(t *testing.T) {
	threadID := uuid.New()

	tests := []struct {
		name       string
		token      string
		path       string
		body       string
		svcErr     error
		wantStatus int
	}{
		{"accepted", "good", threadID.String(), `{"query":"monthly totals"}`, nil, fiber.StatusAccepted},
		{"no token", "", threadID.String(), `{"query":"monthly totals"}`, nil, fiber.StatusUnauthorized},
		{"bad thread id", "good", "nope", `{"query":"monthly totals"}`, nil, fiber.StatusBadRequest},
		{"missing query", "good", threadID.String(), `{}`, nil, fiber.StatusBadRequest},
		{"malformed body", "good", threadID.String(), `{`, nil, fiber.StatusBadRequest},
		{"thread not found", "good", threadID.String(), `{"query":"q"}`, service.ErrThreadNotFound, fiber.StatusNotFound},
		{"llm disabled", "good", threadID.String(), `{"query":"q"}`, service.ErrLLMDisabled, fiber.StatusBadRequest},
		{"not a member", "good", threadID.String(), `{"query":"q"}`, service.ErrNotChannelMember, fiber.StatusForbidden},
		{"rate limited", "good", threadID.String(), `{"query":"q"}`, service.ErrRateLimited, fiber.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			svc := &fakeQueryService{err: tt.svcErr, requestID: uuid.New()}
			app := newQueryApp(svc, userID)

			req := httptest.NewRequest("POST", "/api/threads/"+tt.path+"/llm-query", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus != fiber.StatusAccepted {
				return
			}
			var body struct {
				Data struct {
					RequestID uuid.UUID `json:"request_id"`
					ThreadID  uuid.UUID `json:"thread_id"`
				} `json:"data"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, svc.requestID, body.Data.RequestID)
			assert.Equal(t, threadID, body.Data.ThreadID)
			assert.Equal(t, userID, svc.principal)
			assert.Equal(t, "monthly totals", svc.text)
		})
	}
}
