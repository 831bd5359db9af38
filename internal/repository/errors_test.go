package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

func TestMapStoreError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "no rows", in: pgx.ErrNoRows, want: ErrNotFound},
		{name: "wrapped no rows", in: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: ErrNotFound},
		{name: "active assignee", in: &pgconn.PgError{Code: "23505", ConstraintName: "issues_active_assignee_key"}, want: ErrTechnicianBusy},
		{name: "email", in: &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, want: ErrDuplicateEmail},
		{name: "foreign key", in: &pgconn.PgError{Code: "23503"}, want: ErrInvalidReference},
		{name: "other", in: plain, want: plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapStoreError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapStoreError_Unavailable(t *testing.T) {
	for _, err := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("query: %w", context.Canceled),
		&pgconn.PgError{Code: "57014"},
	} {
		assert.True(t, apperrors.IsRetryable(mapStoreError(err)), "%v", err)
	}
}
