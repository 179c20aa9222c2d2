package config

import "github.com/sessionrelay/tailwatch/pkg/destination"

// AttachTarget is one destination.Target paired with the session and
// transcript path it should be attached to, derived from a
// DestinationEntry for the orchestrator's startup attach() pass.
type AttachTarget struct {
	SessionID string
	Path      string
	Target    destination.Target
}

// Targets flattens the configured Destinations into one AttachTarget per
// entry, skipping entries with neither Telegram nor Slack populated
// (caught by validate at load time, but defensive here too).
func (c *Config) Targets() []AttachTarget {
	targets := make([]AttachTarget, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		switch {
		case d.Telegram != nil:
			targets = append(targets, AttachTarget{
				SessionID: d.SessionID,
				Path:      d.Path,
				Target:    destination.Target{Kind: destination.KindTelegram, ChatID: d.Telegram.ChatID},
			})
		case d.Slack != nil:
			targets = append(targets, AttachTarget{
				SessionID: d.SessionID,
				Path:      d.Path,
				Target:    destination.Target{Kind: destination.KindSlack, Channel: d.Slack.Channel},
			})
		}
	}
	return targets
}
