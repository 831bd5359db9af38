package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IssueFilter narrows issue listings. A zero Limit returns every match.
type IssueFilter struct {
	AssigneeID *string
	Status     *domain.IssueStatus
	Limit      int
}

// IssuePatch carries a partial update. Nil fields keep their stored value.
// ExpectedStatus, when set, makes the write conditional on the current status.
type IssuePatch struct {
	Title          *string
	Description    *string
	Status         *domain.IssueStatus
	ExpectedStatus *domain.IssueStatus
	InProgressAt   *time.Time
	ClosedAt       *time.Time
}

// IssueRepository is the record store for issues. Every mutation is a single
// document-level write; Assign and Patch are conditional writes.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	Patch(ctx context.Context, id string, patch IssuePatch) (*domain.Issue, error)
	Assign(ctx context.Context, issueID, technicianID string, at time.Time) (*domain.Issue, error)
	Delete(ctx context.Context, id string) error
	FindActiveByAssignee(ctx context.Context, technicianID string) (*domain.Issue, error)
}

type issueRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool, timeout time.Duration) IssueRepository {
	return &issueRepository{pool: pool, timeout: timeout}
}

const issueColumns = `id::text, title, description, status, assigned_to::text, created_by::text,
               opened_at, in_progress_at, closed_at, created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
        INSERT INTO issues (title, description, status, assigned_to, created_by, opened_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id::text, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.AssignedTo,
		issue.CreatedBy,
		issue.StatusTimestamps.Open,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
	return mapStoreError(err)
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return issue, nil
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	clauses := []string{"1=1"}
	args := []any{}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY created_at DESC, seq DESC`,
		issueColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return issues, nil
}

func (r *issueRepository) Patch(ctx context.Context, id string, patch IssuePatch) (*domain.Issue, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
        UPDATE issues SET
            title = COALESCE($2, title),
            description = COALESCE($3, description),
            status = COALESCE($4, status),
            in_progress_at = COALESCE(in_progress_at, $7),
            closed_at = COALESCE(closed_at, $5),
            updated_at = NOW()
        WHERE id = $1 AND ($6::text IS NULL OR status = $6)
        RETURNING ` + issueColumns
	issue, err := scanIssue(r.pool.QueryRow(ctx, query,
		id,
		patch.Title,
		patch.Description,
		patch.Status,
		patch.ClosedAt,
		patch.ExpectedStatus,
		patch.InProgressAt,
	))
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapStoreError(err)
	}
	if patch.ExpectedStatus == nil {
		return nil, ErrNotFound
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusChanged
}

// Assign sets the assignee in one conditional UPDATE. The partial unique index
// issues_active_assignee_key serializes concurrent writers targeting the same technician.
func (r *issueRepository) Assign(ctx context.Context, issueID, technicianID string, at time.Time) (*domain.Issue, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
        UPDATE issues SET
            assigned_to = $2,
            status = CASE WHEN status = 'open' THEN 'in_progress' ELSE status END,
            in_progress_at = COALESCE(in_progress_at, $3),
            updated_at = NOW()
        WHERE id = $1
          AND assigned_to IS NULL
          AND EXISTS (SELECT 1 FROM users u WHERE u.id = $2 AND u.role = 'technician')
          AND NOT EXISTS (SELECT 1 FROM issues o WHERE o.assigned_to = $2 AND o.status <> 'closed')
        RETURNING ` + issueColumns
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, issueID, technicianID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignRejected
	}
	if err != nil {
		return nil, mapStoreError(err)
	}
	return issue, nil
}

func (r *issueRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM issues WHERE id=$1`, id)
	if err != nil {
		return mapStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *issueRepository) FindActiveByAssignee(ctx context.Context, technicianID string) (*domain.Issue, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + issueColumns + ` FROM issues
        WHERE assigned_to=$1 AND status <> 'closed'
        ORDER BY created_at DESC LIMIT 1`
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, technicianID))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return issue, nil
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	if err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Status,
		&issue.AssignedTo,
		&issue.CreatedBy,
		&issue.StatusTimestamps.Open,
		&issue.StatusTimestamps.InProgress,
		&issue.StatusTimestamps.Closed,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	result := []domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}
