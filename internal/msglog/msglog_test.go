package msglog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAddAndRecent(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.Add(ctx, 1, "ivan", "Иван", "море", "telegram"))
	require.NoError(t, l.Add(ctx, 2, "anna", "Анна", "шторм", "web"))
	require.NoError(t, l.Add(ctx, 1, "ivan", "Иван", "корабль", "telegram"))

	got, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, "корабль", got[0].Content)
	assert.Equal(t, "шторм", got[1].Content)
	assert.Equal(t, "море", got[2].Content)
	assert.Equal(t, "Анна", got[1].DisplayName)
	assert.Equal(t, "web", got[1].Source)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestRecentRespectsLimit(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Add(ctx, int64(i), "u", "U", "msg", "telegram"))
	}

	got, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.Add(ctx, 1, "ivan", "Иван", "море", "telegram"))
	require.NoError(t, l.Add(ctx, 1, "ivan", "Иван", "шторм", "telegram"))
	require.NoError(t, l.Add(ctx, 2, "anna", "Анна", "корабль", "web"))

	s, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalMessages)
	assert.Equal(t, 2, s.UniqueUsers)
	assert.Equal(t, 3, s.LastHour)
	assert.Equal(t, 3, s.LastMinute)
}

func TestStatsEmpty(t *testing.T) {
	l := openTestLog(t)

	s, err := l.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.TotalMessages)
	assert.Zero(t, s.UniqueUsers)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	require.NoError(t, l.Add(ctx, 1, "ivan", "Иван", "море", "telegram"))
	require.NoError(t, l.Reset(ctx))

	s, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.TotalMessages)
}

func TestOpenCreatesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "messages.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Add(context.Background(), 1, "ivan", "Иван", "море", "telegram"))
	assert.FileExists(t, path)
}
