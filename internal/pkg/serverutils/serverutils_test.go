package serverutils

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJwtAuthenticator_Authenticate(t *testing.T) {
	userID := uuid.New()
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		want    uuid.UUID
		wantErr error
	}{
		{
			name: "sub claim",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "exp": future})
			},
			want: userID,
		},
		{
			name: "user_id claim",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": userID.String()})
			},
			want: userID,
		},
		{
			name:    "missing",
			token:   func(t *testing.T) string { return "" },
			wantErr: ErrMissingToken,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String(), "exp": time.Now().Add(-time.Minute).Unix()})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": userID.String()})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "unsigned token",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": userID.String()})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "principal not a uuid",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice"})
			},
			wantErr: ErrInvalidToken,
		},
	}

	auth := NewJwtAuthenticator(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.Authenticate(tt.token(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJwtMiddleware(t *testing.T) {
	userID := uuid.New()
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": userID.String()})

	app := fiber.New()
	app.Get("/me", JwtMiddleware(NewJwtAuthenticator(testSecret)), func(c *fiber.Ctx) error {
		id, ok := UserID(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(id.String())
	})

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
	}{
		{"bearer header", "/me", "Bearer " + token, fiber.StatusOK},
		{"query token", "/me?token=" + token, "", fiber.StatusOK},
		{"no token", "/me", "", fiber.StatusUnauthorized},
		{"garbage", "/me", "Bearer nope", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, userID.String(), string(body))
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(nil))
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password is hunter2") })

	resp, err := app.Test(httptest.NewRequest("GET", "/teapot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(body), "hunter2")
}
