package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFallback = "Кинематографичный стиль; широкий план, масштаб, без крупных лиц"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "current_base_prompt.txt")
	return NewManager(path, testFallback, zerolog.Nop())
}

func TestCurrentSeedsMissingFile(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, testFallback, m.Current())
	data, err := os.ReadFile(m.path)
	require.NoError(t, err)
	assert.Equal(t, testFallback, string(data))
}

func TestUpdateAndCurrent(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Update("Акварельный морской пейзаж"))
	assert.Equal(t, "Акварельный морской пейзаж", m.Current())

	// Survives a fresh manager over the same file.
	again := NewManager(m.path, testFallback, zerolog.Nop())
	assert.Equal(t, "Акварельный морской пейзаж", again.Current())
}

func TestUpdateRejectsEmpty(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Update(""))
	assert.Error(t, m.Update("   \n"))
}

func TestCurrentFallsBackOnBlankFile(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.path, []byte("  \n\t"), 0o644))
	assert.Equal(t, testFallback, m.Current())
}

func TestInfoPreviewTruncated(t *testing.T) {
	m := newTestManager(t)
	long := strings.Repeat("якорь ", 30)
	require.NoError(t, m.Update(long))

	info := m.Info()
	assert.Equal(t, strings.TrimSpace(long), info.Current)
	assert.Equal(t, utf8.RuneCountInString(strings.TrimSpace(long)), info.Length)
	assert.Equal(t, 103, utf8.RuneCountInString(info.Preview))
	assert.True(t, strings.HasSuffix(info.Preview, "..."))
}

func TestBuildFullWithinBudget(t *testing.T) {
	got := BuildFull("море и шторм", "акварель", 500)
	assert.Equal(t, "Создай художественное изображение: море и шторм акварель", got)
}

func TestBuildFullShortensStyleFirst(t *testing.T) {
	mixed := strings.Repeat("м", 100)
	style := strings.Repeat("с", 500)

	got := BuildFull(mixed, style, 500)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 500)
	assert.Contains(t, got, mixed)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestBuildFullDropsStyleWhenNoRoom(t *testing.T) {
	mixed := strings.Repeat("м", 480)
	got := BuildFull(mixed, "длинный стиль", 500)
	assert.Contains(t, got, mixed)
	assert.NotContains(t, got, "стиль")
}
