package genimage

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

var retryInMessage = regexp.MustCompile(`retry in ([\d.]+)s`)

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// parseRetryDelay extracts the server's suggested wait from a 429 error body.
// It checks the structured RetryInfo detail first ("14s" style), then falls
// back to a "retry in Ns" phrase inside the error message. Returns 0 when no
// hint is present or the body is unparseable.
func parseRetryDelay(body []byte) time.Duration {
	var eb apiErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return 0
	}

	for _, detail := range eb.Error.Details {
		if detail.Type != retryInfoType {
			continue
		}
		raw := strings.TrimSuffix(detail.RetryDelay, "s")
		if raw == detail.RetryDelay {
			continue
		}
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}

	if m := retryInMessage.FindStringSubmatch(strings.ToLower(eb.Error.Message)); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

// fillerPhrases are burned tokens: polite or redundant Russian phrasing that
// adds nothing to the image. Order matters, longer phrases first.
var fillerPhrases = [][2]string{
	{"создай художественное изображение на основе этого текста", "создай изображение"},
	{"художественное изображение", "изображение"},
	{"на основе этого текста", ""},
	{"очень красивое", "красивое"},
	{"очень детальное", "детальное"},
	{"пожалуйста", ""},
	{"очень", ""},
}

// OptimizePrompt normalizes whitespace, strips filler phrasing and caps the
// prompt at limit runes on a word boundary.
func OptimizePrompt(prompt string, limit int) string {
	optimized := strings.Join(strings.Fields(prompt), " ")

	for _, r := range fillerPhrases {
		optimized = strings.ReplaceAll(optimized, r[0], r[1])
	}
	optimized = strings.Join(strings.Fields(optimized), " ")

	if utf8.RuneCountInString(optimized) > limit {
		runes := []rune(optimized)
		cut := string(runes[:limit])
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		optimized = cut + "..."
	}
	return optimized
}

// EstimateTokens approximates token usage for Russian text, roughly one
// token per four characters.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + 1
}
