// Package filter screens audience text before it reaches the image
// generator. The event is family-facing, so violent, explicit and
// extremist imagery is blocked while culturally framed mentions pass.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var forbiddenWords = []string{
	"убийство", "бойня", "насилие", "бомба", "оружие",
	"murder", "violence", "bomb", "weapon",

	"порно", "порнография", "секс", "голый", "обнаженный", "эротика",
	"porn", "sex", "naked", "nude", "erotic",

	"террор", "экстремизм", "расизм", "фашизм", "нацизм",
	"terror", "extremism", "racism", "fascism", "nazism",
}

// RE2's \b is ASCII-only, so Cyrillic words need explicit letter-class
// boundaries.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|\P{L})(?:убить|убийство|смерть)(?:\P{L}|$)`),
	regexp.MustCompile(`(?:^|\P{L})(?:кровь|кровавый|кровавая)(?:\P{L}|$)`),
	regexp.MustCompile(`(?:^|\P{L})(?:война|военный|вооружение)(?:\P{L}|$)`),
	regexp.MustCompile(`(?:^|\P{L})(?:террор|террорист)(?:\P{L}|$)`),
	regexp.MustCompile(`(?:^|\P{L})(?:голый|обнаженный|ню)(?:\P{L}|$)`),
}

// culturalContexts are markers that a flagged word appears in an educational
// or artistic framing rather than as imagery to render.
var culturalContexts = []string{
	"история", "исторический", "книга", "фильм", "искусство", "музей",
	"медицина", "медицинский", "лечение", "врач", "больница",
	"образование", "учебник", "лекция",
	"history", "historical", "book", "movie", "art", "museum",
	"medicine", "medical", "treatment", "doctor", "hospital",
}

var sanitizeReplacements = map[string]string{
	"дерьмо": "отходы",
	"сука":   "собака",
	"shit":   "waste",
	"damn":   "darn",
	"crap":   "waste",
}

// Filter is stateless after construction and safe for concurrent use.
type Filter struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Filter {
	return &Filter{log: log.With().Str("component", "filter").Logger()}
}

// CheckSafety reports whether text may be used for image generation. When
// blocked, reason describes the match.
func (f *Filter) CheckSafety(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return true, ""
	}
	lower := strings.ToLower(text)

	for _, word := range forbiddenWords {
		if strings.Contains(lower, word) && !hasCulturalContext(lower) {
			f.log.Warn().Str("word", word).Msg("forbidden word detected")
			return false, fmt.Sprintf("обнаружено запрещенное слово: %s", word)
		}
	}

	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(lower) && !hasCulturalContext(lower) {
			f.log.Warn().Str("pattern", pattern.String()).Msg("forbidden pattern detected")
			return false, "обнаружен запрещенный контент"
		}
	}

	return true, ""
}

// SanitizePrompt lowercases the prompt and swaps crude words for neutral
// ones. It does not guarantee safety; CheckSafety remains the gate.
func (f *Filter) SanitizePrompt(prompt string) string {
	if prompt == "" {
		return prompt
	}
	sanitized := strings.ToLower(prompt)
	for bad, neutral := range sanitizeReplacements {
		sanitized = strings.ReplaceAll(sanitized, bad, neutral)
	}
	return sanitized
}

func hasCulturalContext(lower string) bool {
	for _, ctx := range culturalContexts {
		if strings.Contains(lower, ctx) {
			return true
		}
	}
	return false
}
