package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"postgres scheme", "postgres://u:p@db:5432/issues?sslmode=disable", "pgx5://u:p@db:5432/issues?sslmode=disable"},
		{"postgresql scheme", "postgresql://u@db/issues", "pgx5://u@db/issues"},
		{"already rewritten", "pgx5://u@db/issues", "pgx5://u@db/issues"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migrateURL(tt.dsn))
		})
	}
}

func TestRunMigrations_SkipsWithoutDSN(t *testing.T) {
	assert.NoError(t, RunMigrations("", zap.NewNop()))
}
