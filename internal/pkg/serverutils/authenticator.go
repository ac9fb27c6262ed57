package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Authenticator resolves a bearer credential to a principal.
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

// JwtAuthenticator accepts HMAC-signed tokens carrying the principal in
// "sub" or "user_id". Expiry is enforced by the parser.
type JwtAuthenticator struct {
	secret []byte
}

func NewJwtAuthenticator(secret string) *JwtAuthenticator {
	return &JwtAuthenticator{secret: []byte(secret)}
}

func (a *JwtAuthenticator) Authenticate(tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, ErrMissingToken
	}
	if len(a.secret) == 0 {
		return uuid.Nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}

	raw, _ := claims["sub"].(string)
	if raw == "" {
		raw, _ = claims["user_id"].(string)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: principal claim is not a uuid", ErrInvalidToken)
	}
	return userID, nil
}

// BearerToken reads the credential from the "token" query parameter, which
// browsers need for websocket handshakes, or the Authorization header.
func BearerToken(ctx *fiber.Ctx) string {
	if token := ctx.Query("token"); token != "" {
		return token
	}
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
