package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationList(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	list.now = func() time.Time { return now }

	require.NoError(t, list.Revoke(ctx, "live", now.Add(time.Hour)))
	require.NoError(t, list.Revoke(ctx, "stale", now.Add(-time.Minute)))

	revoked, err := list.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = list.IsRevoked(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, err = list.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.False(t, revoked, "entries lapse with the token")
}
