package auth

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// WriteError renders err as a go-errors envelope with the status mapped by HTTPStatusFor
func WriteError(c *fiber.Ctx, err error) error {
	rich := RichError(err)
	return c.Status(rich.Code).JSON(rich.ToErrorResponse(false, nil))
}

func unauthenticated(c *fiber.Ctx) error {
	rich := goerrors.New("authentication required", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode("UNAUTHENTICATED")
	return c.Status(rich.Code).JSON(rich.ToErrorResponse(false, nil))
}

// RequireAuthenticated rejects anonymous requests with 401
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentPrincipal(c); !ok {
			return unauthenticated(c)
		}
		return c.Next()
	}
}

// RequireRole rejects anonymous requests with 401 and other roles with 403
func RequireRole(role Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return unauthenticated(c)
		}
		if p.Role != role {
			return WriteError(c, ErrForbidden)
		}
		return c.Next()
	}
}

// RequireResourceAccess runs the authorizer against the route param before the handler
func RequireResourceAccess(authorizer *Authorizer, param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return unauthenticated(c)
		}

		if err := authorizer.Authorize(c.UserContext(), p, c.Params(param)); err != nil {
			return WriteError(c, err)
		}

		return c.Next()
	}
}
