package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const minPasswordLength = 6

var profileImages = []string{
	"https://avatars.githubusercontent.com/u/76118931?v=4",
	"https://avatars.githubusercontent.com/u/77917845?v=4",
	"https://avatars.githubusercontent.com/u/75869731?v=4",
	"https://avatars.githubusercontent.com/u/24823972?v=4",
}

// AuthService coordinates registration, login and account lookups.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	revoked    auth.RevocationList
	gate       *auth.Gate
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo       repository.UserRepository
	TokenManager   *auth.TokenManager
	RevocationList auth.RevocationList
	Gate           *auth.Gate
	Logger         *zap.Logger
}

// RegisterInput describes a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Session is a freshly issued token for a user.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	tokens := deps.TokenManager
	if tokens == nil {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL())
	}
	revoked := deps.RevocationList
	if revoked == nil {
		revoked = auth.NewMemoryRevocationList()
	}
	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   tokens,
		revoked:    revoked,
		gate:       gate,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
	}
}

// RegisterUser creates an account and signs the new user in.
func (s *AuthService) RegisterUser(ctx context.Context, input RegisterInput) (*Session, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("name, email and password are required", nil)
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewValidationError("password should be 6 or more characters", nil)
	}

	role := domain.RoleTechnician
	if strings.TrimSpace(input.Role) != "" {
		role = domain.Role(strings.TrimSpace(input.Role))
		if !role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
		}
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		ProfileImg:   profileImages[rand.IntN(len(profileImages))],
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email is already taken", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.issueSession(user)
}

// LoginUser authenticates by email and password.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid email or password")
	}
	return s.issueSession(user)
}

// Logout revokes the presented token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, caller domain.Identity, claims *auth.Claims) error {
	if err := s.gate.Authorize(caller, auth.OpLogout); err != nil {
		return err
	}
	if claims == nil || claims.ID == "" {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAtTime()); err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, caller domain.Identity) (*domain.User, error) {
	if err := s.gate.Authorize(caller, auth.OpGetMe); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// ListTechnicians returns every technician account.
func (s *AuthService) ListTechnicians(ctx context.Context, caller domain.Identity) ([]domain.User, error) {
	if err := s.gate.Authorize(caller, auth.OpListTechnicians); err != nil {
		return nil, err
	}
	users, err := s.users.ListByRole(ctx, domain.RoleTechnician)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issueSession(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
