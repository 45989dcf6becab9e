// Package prompt owns the configurable style suffix appended to every
// image prompt and assembles the full prompt within its character budget.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const fullPromptPrefix = "Создай художественное изображение: "

// Manager stores the current style prompt in a file so it survives restarts
// and can be edited from the admin panel while the processor runs.
type Manager struct {
	mu       sync.Mutex
	path     string
	fallback string
	log      zerolog.Logger
}

func NewManager(path, fallback string, log zerolog.Logger) *Manager {
	return &Manager{
		path:     path,
		fallback: fallback,
		log:      log.With().Str("component", "prompt").Logger(),
	}
}

// Current returns the active style prompt. A missing file is seeded with the
// fallback; a read error falls back without failing the pipeline.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := m.writeLocked(m.fallback); werr != nil {
				m.log.Error().Err(werr).Msg("seeding style prompt file failed")
			}
		} else {
			m.log.Error().Err(err).Str("path", m.path).Msg("reading style prompt failed, using fallback")
		}
		return m.fallback
	}

	if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
		return trimmed
	}
	return m.fallback
}

// Update replaces the style prompt on disk.
func (m *Manager) Update(style string) error {
	style = strings.TrimSpace(style)
	if style == "" {
		return errors.New("style prompt must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writeLocked(style); err != nil {
		return err
	}
	m.log.Info().Int("length", utf8.RuneCountInString(style)).Msg("style prompt updated")
	return nil
}

// writeLocked writes via temp file and rename so a concurrent reader never
// sees a half-written prompt.
func (m *Manager) writeLocked(style string) error {
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".prompt-*")
	if err != nil {
		return errors.Wrap(err, "create temp prompt file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(style); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write prompt")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close prompt file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), m.path), "replace prompt file")
}

// Info is the admin view of the current style prompt.
type Info struct {
	Current string `json:"currentPrompt"`
	Length  int    `json:"promptLength"`
	Preview string `json:"promptPreview"`
}

func (m *Manager) Info() Info {
	current := m.Current()
	preview := current
	if runes := []rune(current); len(runes) > 100 {
		preview = string(runes[:100]) + "..."
	}
	return Info{
		Current: current,
		Length:  utf8.RuneCountInString(current),
		Preview: preview,
	}
}

// BuildFull assembles the final image prompt from the mixed text and the
// style suffix, capped at limit runes. The mixed text is always preserved in
// full; the style suffix is shortened first and dropped entirely when even a
// shortened suffix cannot fit.
func BuildFull(mixedText, style string, limit int) string {
	full := fmt.Sprintf("%s%s %s", fullPromptPrefix, mixedText, style)
	if utf8.RuneCountInString(full) <= limit {
		return full
	}

	base := fullPromptPrefix + mixedText
	available := limit - utf8.RuneCountInString(base) - 4
	if available > 0 {
		styleRunes := []rune(style)
		if available < len(styleRunes) {
			style = string(styleRunes[:available]) + "..."
		}
		return fmt.Sprintf("%s %s", base, style)
	}
	return base
}
