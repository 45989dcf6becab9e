// Package notify delivers outbound messages to the audience over the
// Telegram Bot API.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Telegram is a thin Bot API client. With an empty token it degrades to a
// disabled no-op so local runs work without credentials.
type Telegram struct {
	client  *resty.Client
	chatID  string
	enabled bool
	log     zerolog.Logger
}

func NewTelegram(token, chatID string, timeout time.Duration, log zerolog.Logger) *Telegram {
	t := &Telegram{
		chatID:  chatID,
		enabled: token != "",
		log:     log.With().Str("component", "telegram").Logger(),
	}
	if t.enabled {
		t.client = resty.New().
			SetBaseURL(fmt.Sprintf("https://api.telegram.org/bot%s", token)).
			SetTimeout(timeout)
	} else {
		t.log.Warn().Msg("telegram disabled, no token configured")
	}
	return t
}

func (t *Telegram) Enabled() bool { return t.enabled }

// SendMessage sends text to a specific chat, usually a reply to the sender.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !t.enabled {
		return nil
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": strconv.FormatInt(chatID, 10),
			"text":    text,
		}).
		Post("/sendMessage")
	if err != nil {
		return errors.Wrap(err, "telegram sendMessage")
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("telegram sendMessage status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// AnnounceImage posts a finished image with its caption to the configured
// audience chat.
func (t *Telegram) AnnounceImage(ctx context.Context, imagePath, caption string) error {
	if !t.enabled || t.chatID == "" {
		return nil
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetFile("photo", imagePath).
		SetFormData(map[string]string{
			"chat_id": t.chatID,
			"caption": caption,
		}).
		Post("/sendPhoto")
	if err != nil {
		return errors.Wrap(err, "telegram sendPhoto")
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("telegram sendPhoto status %d: %s", resp.StatusCode(), resp.String())
	}

	t.log.Info().Str("image", imagePath).Msg("image announced")
	return nil
}
