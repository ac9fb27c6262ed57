package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const LocalsUserID = "user_id"

// JwtMiddleware rejects the request with 401 unless it carries a valid
// credential, and stores the principal in Locals("user_id") as a uuid.UUID.
func JwtMiddleware(auth Authenticator) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userID, err := auth.Authenticate(BearerToken(ctx))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrMissingToken) {
				msg = "Missing token"
			}
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msg})
		}
		ctx.Locals(LocalsUserID, userID)
		return ctx.Next()
	}
}

// UserID returns the principal stored by JwtMiddleware.
func UserID(ctx *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := ctx.Locals(LocalsUserID).(uuid.UUID)
	return id, ok
}
