package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// RequireOperation rejects the request early when the gate denies op to the caller.
func RequireOperation(gate *Gate, op Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("not authorized, no token")
		}
		if err := gate.Authorize(principal.Identity, op); err != nil {
			return err
		}
		return c.Next()
	}
}
