package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	auth      *service.AuthService
	cookie    config.AuthConfig
	validator *validator.Validate
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, cfg config.AuthConfig) *UsersHandler {
	return &UsersHandler{auth: authService, cookie: cfg, validator: validator.New()}
}

// Register handles POST /users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	session, err := h.auth.RegisterUser(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}

	h.setSessionCookie(c, session.Token, session.ExpiresAt)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(session.User),
			"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
		},
	})
}

// Login handles POST /users/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(err)
	}

	session, err := h.auth.LoginUser(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setSessionCookie(c, session.Token, session.ExpiresAt)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(session.User),
			"auth": dto.AuthResponse{Token: session.Token, ExpiresAt: session.ExpiresAt},
		},
	})
}

// Logout handles POST /users/logout.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), principal.Identity, principal.Claims); err != nil {
		return err
	}

	h.setSessionCookie(c, "", time.Unix(0, 0))
	return c.JSON(fiber.Map{"message": "logged out successfully"})
}

// Me handles GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Me(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// ListTechnicians handles GET /users.
func (h *UsersHandler) ListTechnicians(c *fiber.Ctx) error {
	principal, err := callerPrincipal(c)
	if err != nil {
		return err
	}
	users, err := h.auth.ListTechnicians(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *UsersHandler) setSessionCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
