package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
	"github.com/spec-kit/issue-service/internal/service"
)

type apiFixture struct {
	app   *fiber.App
	store *repository.MemoryStore
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type issueBody struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	AssignedTo *string `json:"assigned_to"`
	Assignee   *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"assignee"`
	StatusTimestamps struct {
		InProgress *string `json:"in_progress"`
		Closed     *string `json:"closed"`
	} `json:"status_timestamps"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := repository.NewMemoryStore()
	gate := auth.NewGate(nil)
	dispatcher := events.NewInMemoryDispatcher()
	service.NewHistoryRecorder(store.History(), logger).RegisterHandlers(dispatcher)

	authCfg := config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost, CookieName: "jwt"}
	revoked := auth.NewMemoryRevocationList()
	accounts := service.NewAuthService(authCfg, service.AuthDependencies{
		UserRepo:       store.Users(),
		RevocationList: revoked,
		Gate:           gate,
		Logger:         logger,
	})
	deps := service.IssueDependencies{
		IssueRepo:  store.Issues(),
		UserRepo:   store.Users(),
		Gate:       gate,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	}
	queries := service.NewQueryService(service.QueryDependencies{
		IssueRepo:   store.Issues(),
		UserRepo:    store.Users(),
		HistoryRepo: store.History(),
		Gate:        gate,
	})

	app := fiber.New()
	RegisterMiddlewares(app, config.AppConfig{CORSAllowedOrigins: "http://localhost:3000"}, logger, metrics)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("issue-service", "test", &persistence.Postgres{}, nil),
		Users:          handlers.NewUsersHandler(accounts, authCfg),
		Issues:         handlers.NewIssuesHandler(service.NewIssueService(deps), service.NewAssignmentService(deps), queries),
		AuthMiddleware: auth.NewAuthMiddleware(accounts.TokenManager(), store.Users(), revoked, authCfg.CookieName),
		Gate:           gate,
		Metrics:        metrics,
	})
	return &apiFixture{app: app, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

type account struct {
	ID    string
	Token string
}

func (f *apiFixture) register(t *testing.T, name, role string) account {
	t.Helper()
	status, env := f.do(t, fiber.MethodPost, "/api/v1/users/register", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret123",
		"role":     role,
	})
	require.Equal(t, fiber.StatusCreated, status)

	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return account{ID: data.User.ID, Token: data.Auth.Token}
}

func decodeIssue(t *testing.T, env envelope) issueBody {
	t.Helper()
	var issue issueBody
	require.NoError(t, json.Unmarshal(env.Data, &issue))
	return issue
}

func decodeIssues(t *testing.T, env envelope) []issueBody {
	t.Helper()
	var issues []issueBody
	require.NoError(t, json.Unmarshal(env.Data, &issues))
	return issues
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.register(t, "admin", "admin")
	tech := f.register(t, "tech", "")

	status, env := f.do(t, fiber.MethodPost, "/api/v1/issues/create", admin.Token, map[string]string{
		"title":       "Printer jam",
		"description": "Second floor printer",
	})
	require.Equal(t, fiber.StatusCreated, status)
	created := decodeIssue(t, env)
	assert.Equal(t, "open", created.Status)
	assert.Nil(t, created.AssignedTo)

	status, env = f.do(t, fiber.MethodPost, "/api/v1/issues/assign", admin.Token, map[string]string{
		"issue_id":      created.ID,
		"technician_id": tech.ID,
	})
	require.Equal(t, fiber.StatusOK, status)
	assigned := decodeIssue(t, env)
	assert.Equal(t, "in_progress", assigned.Status)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, tech.ID, *assigned.AssignedTo)
	assert.NotNil(t, assigned.StatusTimestamps.InProgress)

	status, env = f.do(t, fiber.MethodPut, "/api/v1/issues/update/"+created.ID, admin.Token, map[string]string{
		"status": "closed",
	})
	require.Equal(t, fiber.StatusOK, status)
	closed := decodeIssue(t, env)
	assert.Equal(t, "closed", closed.Status)
	assert.NotNil(t, closed.StatusTimestamps.Closed)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/"+created.ID, admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	fetched := decodeIssue(t, env)
	require.NotNil(t, fetched.Assignee)
	assert.Equal(t, "tech", fetched.Assignee.Name)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/"+created.ID+"/history", admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 3)

	status, _ = f.do(t, fiber.MethodDelete, "/api/v1/issues/delete/"+created.ID, admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/"+created.ID, admin.Token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "issue not found", env.Error.Message)
}

func TestListAllIsScopedToTechnician(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.register(t, "admin", "admin")
	tech1 := f.register(t, "tech1", "technician")
	tech2 := f.register(t, "tech2", "technician")

	for _, title := range []string{"first", "second"} {
		status, env := f.do(t, fiber.MethodPost, "/api/v1/issues/create", admin.Token, map[string]string{"title": title, "description": "needs a look"})
		require.Equal(t, fiber.StatusCreated, status)
		if title == "first" {
			issue := decodeIssue(t, env)
			status, _ = f.do(t, fiber.MethodPost, "/api/v1/issues/assign", admin.Token, map[string]string{
				"issue_id":      issue.ID,
				"technician_id": tech1.ID,
			})
			require.Equal(t, fiber.StatusOK, status)
		}
	}

	status, env := f.do(t, fiber.MethodGet, "/api/v1/issues/all", admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	all := decodeIssues(t, env)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Title)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/all", tech1.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	own := decodeIssues(t, env)
	require.Len(t, own, 1)
	assert.Equal(t, "first", own[0].Title)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/all", tech2.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, decodeIssues(t, env))
}

func TestAdminOnlyRoutesRejectTechnicians(t *testing.T) {
	f := newAPIFixture(t)
	tech := f.register(t, "tech", "technician")

	status, env := f.do(t, fiber.MethodPost, "/api/v1/issues/create", tech.Token, map[string]string{"title": "x"})
	assert.Equal(t, fiber.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
	assert.Equal(t, "not authorized as an admin", env.Error.Message)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/issues/latest", tech.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/users", tech.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/users/me", tech.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var me struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, tech.ID, me.ID)
	assert.Equal(t, "technician", me.Role)
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	f := newAPIFixture(t)

	status, env := f.do(t, fiber.MethodGet, "/api/v1/issues/all", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.register(t, "admin", "admin")

	status, _ := f.do(t, fiber.MethodPost, "/api/v1/users/logout", admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/users/me", admin.Token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestValidationErrorsCarryDetails(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.register(t, "admin", "admin")

	status, env := f.do(t, fiber.MethodPost, "/api/v1/issues/assign", admin.Token, map[string]string{"issue_id": "abc"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "fields")

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/status?status=pending", admin.Token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid status", env.Error.Message)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/issues/latest?limit=zero", admin.Token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/latest?limit=200", admin.Token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, "limit must not exceed 100", env.Error.Message)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/issues/latest?limit=100", admin.Token, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = f.do(t, fiber.MethodGet, "/api/v1/issues/not-a-uuid", admin.Token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "dup", "")

	status, env := f.do(t, fiber.MethodPost, "/api/v1/users/register", "", map[string]string{
		"name":     "dup",
		"email":    "dup@example.com",
		"password": "secret123",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestListByStatusReportsCount(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.register(t, "admin", "admin")
	for _, title := range []string{"a", "b", "c"} {
		status, _ := f.do(t, fiber.MethodPost, "/api/v1/issues/create", admin.Token, map[string]string{"title": title, "description": "needs a look"})
		require.Equal(t, fiber.StatusCreated, status)
	}

	status, env := f.do(t, fiber.MethodGet, "/api/v1/issues/status?status=open", admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 3, env.Count)

	status, env = f.do(t, fiber.MethodGet, "/api/v1/issues/latest?limit=2", admin.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	latest := decodeIssues(t, env)
	require.Len(t, latest, 2)
	assert.Equal(t, "c", latest[0].Title)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var ready struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "memory", ready.Dependencies["store"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])

	resp, err = f.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	status, env := f.do(t, fiber.MethodGet, "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
