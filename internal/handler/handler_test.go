package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"chatserver-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatHandler_ServeWsRejectsBeforeUpgrade(t *testing.T) {
	secret := "s3cret"
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.NewString()}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	app := fiber.New()
	NewChatHandler(nil, serverutils.NewJwtAuthenticator(secret), nil).RegisterRoutes(app.Group("/api"))

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"no token", "/api/ws", fiber.StatusUnauthorized},
		{"bad token", "/api/ws?token=abc", fiber.StatusUnauthorized},
		{"valid token without upgrade", "/api/ws?token=" + valid, fiber.StatusUpgradeRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		want       string
	}{
		{
			name:       "no checks",
			wantStatus: fiber.StatusOK,
			want:       "ok",
		},
		{
			name: "all pass",
			checks: map[string]HealthCheck{
				"db": func(context.Context) error { return nil },
			},
			wantStatus: fiber.StatusOK,
			want:       "ok",
		},
		{
			name: "one fails",
			checks: map[string]HealthCheck{
				"db":    func(context.Context) error { return nil },
				"redis": func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: fiber.StatusServiceUnavailable,
			want:       "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			NewHealthHandler(tt.checks).RegisterRoutes(app)

			resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}
