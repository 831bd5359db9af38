package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IssueHistoryRepository stores audit entries.
type IssueHistoryRepository interface {
	Create(ctx context.Context, history *domain.IssueHistory) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.IssueHistory, error)
}

type issueHistoryRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewIssueHistoryRepository builds repository.
func NewIssueHistoryRepository(pool *pgxpool.Pool, timeout time.Duration) IssueHistoryRepository {
	return &issueHistoryRepository{pool: pool, timeout: timeout}
}

func (r *issueHistoryRepository) Create(ctx context.Context, history *domain.IssueHistory) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var changedBy *string
	if history.ChangedByID != "" {
		changedBy = &history.ChangedByID
	}
	const query = `
        INSERT INTO issue_history (issue_id, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id::text, created_at`
	err := r.pool.QueryRow(ctx, query,
		history.IssueID,
		changedBy,
		history.ChangeType,
		jsonValue(history.OldValue),
		jsonValue(history.NewValue),
	).Scan(&history.ID, &history.CreatedAt)
	return mapStoreError(err)
}

func (r *issueHistoryRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.IssueHistory, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
        SELECT id::text, issue_id::text, COALESCE(changed_by_id::text, ''), change_type, old_value, new_value, created_at
        FROM issue_history WHERE issue_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	result := []domain.IssueHistory{}
	for rows.Next() {
		var history domain.IssueHistory
		if err := rows.Scan(
			&history.ID,
			&history.IssueID,
			&history.ChangedByID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, mapStoreError(err)
		}
		result = append(result, history)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

func jsonValue(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
