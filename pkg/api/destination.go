package api

import (
	"fmt"

	"github.com/sessionrelay/tailwatch/pkg/destination"
)

// parseDestination converts the wire {type, chat_id|channel} shape into a
// destination.Target, rejecting anything outside the closed Telegram/Slack
// set per §6.
func parseDestination(p destinationPayload) (destination.Target, error) {
	switch p.Type {
	case "telegram":
		if p.ChatID == "" {
			return destination.Target{}, fmt.Errorf("telegram destination requires chat_id")
		}
		return destination.Target{Kind: destination.KindTelegram, ChatID: p.ChatID}, nil
	case "slack":
		if p.Channel == "" {
			return destination.Target{}, fmt.Errorf("slack destination requires channel")
		}
		return destination.Target{Kind: destination.KindSlack, Channel: p.Channel}, nil
	default:
		return destination.Target{}, fmt.Errorf("unknown destination type %q", p.Type)
	}
}
