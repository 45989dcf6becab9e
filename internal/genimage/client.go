// Package genimage is the quota-aware client for the Gemini image
// generation API, with bounded retries around 429 responses.
package genimage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/neyrobot/showcanvas/internal/model"
)

// QuotaError is returned when the API quota stays exhausted after every
// retry. RetryAfter carries the server's hint when one was given, zero
// otherwise.
type QuotaError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string { return e.Message }

// QuotaGate gates outbound requests against local rate limits. Satisfied by
// quota.Tracker.
type QuotaGate interface {
	WaitIfNeeded(ctx context.Context, estimatedTokens int) error
	RecordRequest(tokensUsed int)
}

// Config holds the client settings.
type Config struct {
	URL         string
	APIKey      string
	MaxRetries  int
	BaseDelay   time.Duration
	HTTPTimeout time.Duration
	PromptLimit int
}

// Client calls the Gemini generateContent endpoint and returns raw image
// bytes. It never issues a request without passing the quota gate first.
type Client struct {
	http  *resty.Client
	cfg   Config
	quota QuotaGate
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger
}

func NewClient(cfg Config, quota QuotaGate, log zerolog.Logger) *Client {
	httpc := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey).
		SetTimeout(cfg.HTTPTimeout)

	return &Client{
		http:  httpc,
		cfg:   cfg,
		quota: quota,
		sleep: sleepContext,
		log:   log.With().Str("component", "genimage").Logger(),
	}
}

type textPart struct {
	Text string `json:"text"`
}

type promptContent struct {
	Parts []textPart `json:"parts"`
}

type generatePayload struct {
	Contents []promptContent `json:"contents"`
}

func newGeneratePayload(prompt string) generatePayload {
	return generatePayload{
		Contents: []promptContent{{Parts: []textPart{{Text: prompt}}}},
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// responsePart carries both field spellings the API has been seen using.
type responsePart struct {
	InlineData      *inlineData `json:"inlineData"`
	InlineDataSnake *inlineData `json:"inline_data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []responsePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage produces raw image bytes for prompt. The prompt is optimized
// before sending; the quota gate is consulted once up front, not per retry,
// because a 429 retry responds to the server's own signal. A 429 on the last
// attempt surfaces as *QuotaError.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	optimized := OptimizePrompt(prompt, c.cfg.PromptLimit)
	tokens := EstimateTokens(optimized)

	if err := c.quota.WaitIfNeeded(ctx, tokens); err != nil {
		return nil, errors.Wrap(err, "quota wait")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute
	bo.Reset()

	payload := newGeneratePayload(optimized)
	var lastRetryAfter time.Duration

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(&payload).
			Post(c.cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "gemini request")
		}

		if resp.StatusCode() == http.StatusTooManyRequests {
			retryAfter := parseRetryDelay(resp.Body())
			lastRetryAfter = retryAfter
			c.log.Warn().Int("attempt", attempt+1).Int("max", c.cfg.MaxRetries).
				Dur("retry_after", retryAfter).Msg("gemini quota exceeded")

			if attempt < c.cfg.MaxRetries-1 {
				delay := retryAfter
				if delay <= 0 {
					delay = bo.NextBackOff()
				}
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &QuotaError{
				Message:    fmt.Sprintf("gemini quota exceeded after %d attempts", c.cfg.MaxRetries),
				RetryAfter: lastRetryAfter,
			}
		}

		if resp.StatusCode() != http.StatusOK {
			return nil, errors.Errorf("gemini status %d: %s", resp.StatusCode(), resp.String())
		}

		data, err := extractImage(resp.Body())
		if err != nil {
			return nil, err
		}

		c.quota.RecordRequest(tokens)
		c.log.Info().Int("attempt", attempt+1).Int("bytes", len(data)).Msg("image generated")
		return data, nil
	}

	return nil, errors.Errorf("gemini retries exhausted after %d attempts", c.cfg.MaxRetries)
}

// extractImage finds the first inline image part across all candidates and
// decodes its base64 payload.
func extractImage(body []byte) ([]byte, error) {
	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, errors.Wrap(err, "decode gemini response")
	}

	for _, cand := range gr.Candidates {
		for _, part := range cand.Content.Parts {
			inline := part.InlineData
			if inline == nil {
				inline = part.InlineDataSnake
			}
			if inline == nil || inline.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(inline.Data)
			if err != nil {
				return nil, errors.Wrap(err, "decode image payload")
			}
			return data, nil
		}
	}
	return nil, model.ErrNoImageData
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
