// Package summarizer condenses a batch of audience messages into a short
// image-generation phrase, with a deterministic fallback when the LLM is
// unavailable or misbehaves.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/model"
)

// Completer produces a text completion for a prompt. Any text-completion
// provider satisfies this; failures and empty responses are recoverable.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Summarizer turns batch messages into mixed text bounded to a rune budget.
type Summarizer struct {
	completer Completer
	limit     int
	language  string
	log       zerolog.Logger
}

func New(completer Completer, limit int, locale string, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		completer: completer,
		limit:     limit,
		language:  languageInstruction(locale),
		log:       log.With().Str("component", "summarizer").Logger(),
	}
}

// languageInstruction maps the event locale to the prompt's output-language
// requirement.
func languageInstruction(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case "", "ru":
		return "На русском языке"
	case "en":
		return "In English"
	default:
		return "На языке: " + locale
	}
}

// Mix produces the mixed text for the given messages. A single message within
// budget passes through verbatim; a single over-budget message is truncated;
// multiple messages are merged by the LLM with a hard server-side cap on the
// result. LLM failure or an empty/"none" reply falls back to joining the
// first three raw messages.
func (s *Summarizer) Mix(ctx context.Context, messages []model.Message) (string, error) {
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		if c := strings.TrimSpace(m.Content); c != "" {
			contents = append(contents, c)
		}
	}
	if len(contents) == 0 {
		return "", model.ErrEmptyBatch
	}

	if len(contents) == 1 {
		return truncateRunes(contents[0], s.limit), nil
	}

	prompt := s.buildPrompt(contents)
	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.log.Warn().Err(err).Msg("llm completion failed, using fallback")
		return s.fallback(contents), nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "none") {
		s.log.Warn().Str("reply", reply).Msg("llm returned unusable reply, using fallback")
		return s.fallback(contents), nil
	}

	return truncateRunes(reply, s.limit), nil
}

func (s *Summarizer) buildPrompt(contents []string) string {
	combined := strings.Join(contents, "; ")
	return fmt.Sprintf(`Объедини эти сообщения зрителей в одно яркое художественное описание до %d символов:

Сообщения: %s

ТРЕБОВАНИЯ:
- Максимум %d символов
- Объедини ключевые образы и эмоции
- Яркое и красочное описание
- Подходит для генерации изображения
- %s
- Без лишних пояснений

Пример: "Туманное море, пиратский корабль, мистика, приключения, золото"`,
		s.limit, combined, s.limit, s.language)
}

// fallback joins the first three messages and truncates to the budget.
func (s *Summarizer) fallback(contents []string) string {
	n := len(contents)
	if n > 3 {
		n = 3
	}
	return truncateRunes(strings.Join(contents[:n], " "), s.limit)
}

// truncateRunes hard-caps s to limit runes, replacing the tail with an
// ellipsis. Rune-based so Cyrillic text is never split mid-character.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
