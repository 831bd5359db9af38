package repository

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAssignRejected is returned when the conditional assignment write matched no row.
	ErrAssignRejected = errors.New("assignment precondition not met")
	// ErrTechnicianBusy is returned when a write would give a technician a second active issue.
	ErrTechnicianBusy = errors.New("technician already holds an active issue")
	// ErrStatusChanged is returned when a patch's expected status no longer matches.
	ErrStatusChanged = errors.New("issue status changed concurrently")
	// ErrDuplicateEmail is returned when a user email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidReference is returned when a foreign key points at a missing user.
	ErrInvalidReference = errors.New("referenced record does not exist")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgQueryCanceled       = "57014"

	constraintActiveAssignee = "issues_active_assignee_key"
	constraintUserEmail      = "users_email_key"
)

// mapStoreError translates driver failures into repository sentinels or StoreUnavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintActiveAssignee:
				return ErrTechnicianBusy
			case constraintUserEmail:
				return ErrDuplicateEmail
			}
		case pgForeignKeyViolation:
			return ErrInvalidReference
		case pgQueryCanceled:
			return apperrors.NewStoreUnavailable(err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return apperrors.NewStoreUnavailable(err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperrors.NewStoreUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewStoreUnavailable(err)
	}
	return err
}

// withTimeout bounds a single store call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
