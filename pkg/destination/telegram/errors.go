package telegram

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sessionrelay/tailwatch/pkg/debounce"
)

// classify wraps a Telegram API error so debounce.ClassifyError can tell
// transient (429/5xx) from permanent (invalid chat, message not found)
// failures, per §4.7.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == 429:
		return &debounce.RateLimitedError{Err: err}
	case apiErr.Code >= 500:
		return &debounce.ServerError{Err: err}
	default:
		return err
	}
}
