package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// MemoryStore is a process-local record store. A single mutex makes every
// write, including the conditional assignment, atomic with respect to readers.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	issues  map[string]*memoryIssue
	history []domain.IssueHistory
	seq     int64
	now     func() time.Time
}

type memoryIssue struct {
	seq   int64
	issue domain.Issue
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  map[string]domain.User{},
		issues: map[string]*memoryIssue{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issues exposes the issue collection.
func (s *MemoryStore) Issues() IssueRepository { return &memoryIssues{store: s} }

// Users exposes the user collection.
func (s *MemoryStore) Users() UserRepository { return &memoryUsers{store: s} }

// History exposes the audit collection.
func (s *MemoryStore) History() IssueHistoryRepository { return &memoryHistory{store: s} }

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

func cloneIssue(issue domain.Issue) *domain.Issue {
	out := issue
	if issue.AssignedTo != nil {
		v := *issue.AssignedTo
		out.AssignedTo = &v
	}
	if issue.StatusTimestamps.InProgress != nil {
		v := *issue.StatusTimestamps.InProgress
		out.StatusTimestamps.InProgress = &v
	}
	if issue.StatusTimestamps.Closed != nil {
		v := *issue.StatusTimestamps.Closed
		out.StatusTimestamps.Closed = &v
	}
	out.Assignee = nil
	return &out
}

// activeIssueFor must be called with the lock held.
func (s *MemoryStore) activeIssueFor(technicianID, exceptID string) *memoryIssue {
	var found *memoryIssue
	for id, entry := range s.issues {
		if id == exceptID || entry.issue.AssignedTo == nil || *entry.issue.AssignedTo != technicianID {
			continue
		}
		if !entry.issue.Status.Active() {
			continue
		}
		if found == nil || entry.seq > found.seq {
			found = entry
		}
	}
	return found
}

type memoryIssues struct {
	store *MemoryStore
}

func (r *memoryIssues) Create(ctx context.Context, issue *domain.Issue) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[issue.CreatedBy]; !ok {
		return ErrInvalidReference
	}
	if issue.AssignedTo != nil {
		if _, ok := s.users[*issue.AssignedTo]; !ok {
			return ErrInvalidReference
		}
		if issue.Status.Active() && s.activeIssueFor(*issue.AssignedTo, "") != nil {
			return ErrTechnicianBusy
		}
	}

	now := s.now()
	s.seq++
	issue.ID = uuid.NewString()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	if issue.StatusTimestamps.Open.IsZero() {
		issue.StatusTimestamps.Open = now
	}
	s.issues[issue.ID] = &memoryIssue{seq: s.seq, issue: *cloneIssue(*issue)}
	return nil
}

func (r *memoryIssues) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIssue(entry.issue), nil
}

func (r *memoryIssues) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	entries := make([]*memoryIssue, 0, len(s.issues))
	for _, entry := range s.issues {
		if filter.AssigneeID != nil && (entry.issue.AssignedTo == nil || *entry.issue.AssignedTo != *filter.AssigneeID) {
			continue
		}
		if filter.Status != nil && entry.issue.Status != *filter.Status {
			continue
		}
		entries = append(entries, &memoryIssue{seq: entry.seq, issue: *cloneIssue(entry.issue)})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.issue.CreatedAt.Equal(b.issue.CreatedAt) {
			return a.issue.CreatedAt.After(b.issue.CreatedAt)
		}
		return a.seq > b.seq
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	result := make([]domain.Issue, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.issue)
	}
	return result, nil
}

func (r *memoryIssues) Patch(ctx context.Context, id string, patch IssuePatch) (*domain.Issue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.ExpectedStatus != nil && entry.issue.Status != *patch.ExpectedStatus {
		return nil, ErrStatusChanged
	}

	next := *cloneIssue(entry.issue)
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.InProgressAt != nil && next.StatusTimestamps.InProgress == nil {
		inProgressAt := *patch.InProgressAt
		next.StatusTimestamps.InProgress = &inProgressAt
	}
	if patch.ClosedAt != nil && next.StatusTimestamps.Closed == nil {
		closedAt := *patch.ClosedAt
		next.StatusTimestamps.Closed = &closedAt
	}
	if next.AssignedTo != nil && next.Status.Active() && s.activeIssueFor(*next.AssignedTo, id) != nil {
		return nil, ErrTechnicianBusy
	}
	next.UpdatedAt = s.now()
	entry.issue = next
	return cloneIssue(next), nil
}

func (r *memoryIssues) Assign(ctx context.Context, issueID, technicianID string, at time.Time) (*domain.Issue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.issues[issueID]
	if !ok || entry.issue.IsAssigned() {
		return nil, ErrAssignRejected
	}
	technician, ok := s.users[technicianID]
	if !ok || technician.Role != domain.RoleTechnician {
		return nil, ErrAssignRejected
	}
	if s.activeIssueFor(technicianID, "") != nil {
		return nil, ErrAssignRejected
	}

	assignee := technicianID
	entry.issue.AssignedTo = &assignee
	if entry.issue.Status == domain.IssueStatusOpen {
		entry.issue.Status = domain.IssueStatusInProgress
	}
	if entry.issue.StatusTimestamps.InProgress == nil {
		stamped := at
		entry.issue.StatusTimestamps.InProgress = &stamped
	}
	entry.issue.UpdatedAt = s.now()
	return cloneIssue(entry.issue), nil
}

func (r *memoryIssues) Delete(ctx context.Context, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[id]; !ok {
		return ErrNotFound
	}
	delete(s.issues, id)

	kept := s.history[:0]
	for _, entry := range s.history {
		if entry.IssueID != id {
			kept = append(kept, entry)
		}
	}
	s.history = kept
	return nil
}

func (r *memoryIssues) FindActiveByAssignee(ctx context.Context, technicianID string) (*domain.Issue, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := s.activeIssueFor(technicianID, "")
	if entry == nil {
		return nil, ErrNotFound
	}
	return cloneIssue(entry.issue), nil
}

type memoryUsers struct {
	store *MemoryStore
}

func (r *memoryUsers) Create(ctx context.Context, user *domain.User) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	now := s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (r *memoryUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *memoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUsers) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	result := []domain.User{}
	for _, user := range s.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *memoryUsers) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.User{}
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

type memoryHistory struct {
	store *MemoryStore
}

func (r *memoryHistory) Create(ctx context.Context, history *domain.IssueHistory) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[history.IssueID]; !ok {
		return ErrInvalidReference
	}
	history.ID = uuid.NewString()
	history.CreatedAt = s.now()
	history.OldValue = jsonValue(history.OldValue)
	history.NewValue = jsonValue(history.NewValue)
	s.history = append(s.history, *history)
	return nil
}

func (r *memoryHistory) ListByIssue(ctx context.Context, issueID string) ([]domain.IssueHistory, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.IssueHistory{}
	for _, entry := range s.history {
		if entry.IssueID == issueID {
			result = append(result, entry)
		}
	}
	return result, nil
}
