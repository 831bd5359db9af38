package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/repository"
)

type fixture struct {
	store      *repository.MemoryStore
	dispatcher events.Dispatcher
	issues     *IssueService
	assign     *AssignmentService
	queries    *QueryService
	accounts   *AuthService

	admin domain.Identity
	tech1 domain.Identity
	tech2 domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithGate(t, auth.NewGate(nil))
}

func newFixtureWithGate(t *testing.T, gate *auth.Gate) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()
	NewHistoryRecorder(store.History(), nil).RegisterHandlers(dispatcher)

	deps := IssueDependencies{
		IssueRepo:  store.Issues(),
		UserRepo:   store.Users(),
		Gate:       gate,
		Dispatcher: dispatcher,
	}
	f := &fixture{
		store:      store,
		dispatcher: dispatcher,
		issues:     NewIssueService(deps),
		assign:     NewAssignmentService(deps),
		queries: NewQueryService(QueryDependencies{
			IssueRepo:   store.Issues(),
			UserRepo:    store.Users(),
			HistoryRepo: store.History(),
			Gate:        gate,
		}),
		accounts: NewAuthService(config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost}, AuthDependencies{
			UserRepo: store.Users(),
			Gate:     gate,
		}),
	}
	f.admin = f.addUser(t, "admin", domain.RoleAdmin)
	f.tech1 = f.addUser(t, "tech1", domain.RoleTechnician)
	f.tech2 = f.addUser(t, "tech2", domain.RoleTechnician)
	return f
}

func (f *fixture) addUser(t *testing.T, name string, role domain.Role) domain.Identity {
	t.Helper()
	user := domain.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Role: role}
	require.NoError(t, f.store.Users().Create(context.Background(), &user))
	return domain.Identity{UserID: user.ID, Role: role}
}

func (f *fixture) createIssue(t *testing.T, title string) *domain.Issue {
	t.Helper()
	issue, err := f.issues.CreateIssue(context.Background(), f.admin, IssueCreateInput{Title: title, Description: "broken"})
	require.NoError(t, err)
	return issue
}

func strPtr(v string) *string { return &v }

type mockIssueRepo struct {
	mock.Mock
}

func (m *mockIssueRepo) Create(ctx context.Context, issue *domain.Issue) error {
	return m.Called(ctx, issue).Error(0)
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	args := m.Called(ctx, id)
	issue, _ := args.Get(0).(*domain.Issue)
	return issue, args.Error(1)
}

func (m *mockIssueRepo) List(ctx context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	args := m.Called(ctx, filter)
	issues, _ := args.Get(0).([]domain.Issue)
	return issues, args.Error(1)
}

func (m *mockIssueRepo) Patch(ctx context.Context, id string, patch repository.IssuePatch) (*domain.Issue, error) {
	args := m.Called(ctx, id, patch)
	issue, _ := args.Get(0).(*domain.Issue)
	return issue, args.Error(1)
}

func (m *mockIssueRepo) Assign(ctx context.Context, issueID, technicianID string, at time.Time) (*domain.Issue, error) {
	args := m.Called(ctx, issueID, technicianID, at)
	issue, _ := args.Get(0).(*domain.Issue)
	return issue, args.Error(1)
}

func (m *mockIssueRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockIssueRepo) FindActiveByAssignee(ctx context.Context, technicianID string) (*domain.Issue, error) {
	args := m.Called(ctx, technicianID)
	issue, _ := args.Get(0).(*domain.Issue)
	return issue, args.Error(1)
}
