// Package slack implements the Slack chat destination publisher.
package slack

import (
	"context"
	"errors"

	goslack "github.com/slack-go/slack"

	"github.com/sessionrelay/tailwatch/pkg/debounce"
	"github.com/sessionrelay/tailwatch/pkg/destination"
)

// maxCodePoints is Slack's practical per-message-block text limit; the
// teacher's pkg/slack/message.go uses 2900 for Block Kit sections, this
// publisher rounds up slightly per DESIGN.md's Open Question decision.
const maxCodePoints = 3000

const truncationMarker = "… [truncated]"

// Publisher sends/edits messages via the Slack Web API. Constructed once
// per process (one bot token), shared across all attached Slack channels
// — grounded near-verbatim on the teacher's pkg/slack.Client wrapper
// around *goslack.Client, generalized from a single fixed channel to a
// per-call target channel.
type Publisher struct {
	api *goslack.Client
}

// New constructs a Publisher authenticated with token.
func New(token string) *Publisher {
	return &Publisher{api: goslack.New(token)}
}

// NewWithAPIURL constructs a Publisher against a custom API URL, for tests
// against a mock server — mirrors the teacher's NewClientWithAPIURL.
func NewWithAPIURL(token, apiURL string) *Publisher {
	return &Publisher{api: goslack.New(token, goslack.OptionAPIURL(apiURL))}
}

// Send posts text to channel and returns an opaque handle (the message
// timestamp) for later edits.
func (p *Publisher) Send(ctx context.Context, target, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, destination.RequestTimeout)
	defer cancel()

	_, ts, err := p.api.PostMessageContext(ctx, target, textOption(text))
	if err != nil {
		return "", classify(err)
	}
	return ts, nil
}

// Edit replaces the text of the message identified by handle (its
// timestamp) within target.
func (p *Publisher) Edit(ctx context.Context, target, handle, text string) error {
	ctx, cancel := context.WithTimeout(ctx, destination.RequestTimeout)
	defer cancel()

	_, _, _, err := p.api.UpdateMessageContext(ctx, target, handle, textOption(text))
	if err != nil {
		return classify(err)
	}
	return nil
}

func textOption(text string) goslack.MsgOption {
	clipped := destination.Clip(text, truncationMarker, maxCodePoints)
	return goslack.MsgOptionBlocks(
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, clipped, false, false),
			nil, nil,
		),
	)
}

// classify wraps a Slack API error so debounce.ClassifyError can tell
// transient (rate_limited) from permanent (channel_not_found,
// message_not_found, invalid_auth) failures, per §4.7. Slack's SDK
// surfaces most API errors as plain strings ("channel_not_found" etc.)
// rather than typed errors, except for rate limiting, which gets its own
// type.
func classify(err error) error {
	var rlErr *goslack.RateLimitedError
	if errors.As(err, &rlErr) {
		return &debounce.RateLimitedError{Err: err}
	}
	return err
}
