// Package telegram implements the Telegram chat destination publisher.
package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sessionrelay/tailwatch/pkg/destination"
)

// maxCodePoints is Telegram's per-message text limit (§4.8 example).
const maxCodePoints = 4096

const truncationMarker = "… [truncated]"

// Publisher sends/edits messages via the Telegram Bot API. Constructed
// once per process (one bot token), shared across all attached Telegram
// chats — grounded on the teacher's pkg/slack.Client shape (a thin wrapper
// over a chat SDK with a fixed identity), adapted to a different SDK with
// a per-call chat id rather than a per-client channel id.
type Publisher struct {
	bot *tgbotapi.BotAPI
}

// New constructs a Publisher authenticated with token.
func New(token string) (*Publisher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to init bot: %w", err)
	}
	return &Publisher{bot: bot}, nil
}

// Send posts text to chatID and returns an opaque handle (the message id)
// for later edits.
func (p *Publisher) Send(ctx context.Context, target, text string) (string, error) {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat id %q: %w", target, err)
	}

	msg := tgbotapi.NewMessage(chatID, destination.Clip(text, truncationMarker, maxCodePoints))
	sent, err := p.sendWithTimeout(ctx, msg)
	if err != nil {
		return "", classify(err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Edit replaces the text of the message identified by handle within
// target.
func (p *Publisher) Edit(ctx context.Context, target, handle, text string) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", target, err)
	}
	messageID, err := strconv.Atoi(handle)
	if err != nil {
		return fmt.Errorf("telegram: invalid message handle %q: %w", handle, err)
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, destination.Clip(text, truncationMarker, maxCodePoints))
	if _, err := p.sendWithTimeout(ctx, edit); err != nil {
		return classify(err)
	}
	return nil
}

// sendWithTimeout bounds one bot.Send call to destination.RequestTimeout
// (§5). The v5 Bot API's Send has no context-aware variant, so the call
// runs on its own goroutine and the timeout is enforced by racing its
// result against ctx.Done(); a timed-out call is abandoned, not joined.
func (p *Publisher) sendWithTimeout(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, destination.RequestTimeout)
	defer cancel()

	type result struct {
		msg tgbotapi.Message
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		msg, err := p.bot.Send(c)
		resultCh <- result{msg, err}
	}()

	select {
	case res := <-resultCh:
		return res.msg, res.err
	case <-ctx.Done():
		return tgbotapi.Message{}, ctx.Err()
	}
}
