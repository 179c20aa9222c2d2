package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sessionrelay/tailwatch/pkg/destination"
)

// Save writes c back to path as YAML, atomically (temp file + rename),
// mirroring statestore's write discipline. The registry calls this after
// every runtime Attach/Detach so the config file stays the durable record
// of attachments made at runtime, per §4.12.
func (c *Config) Save(path string) error {
	raw := toRootYAML(c)
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return os.Rename(tmp, path)
}

// toRootYAML renders c back into the raw document shape Initialize loads,
// the reverse of resolve.
func toRootYAML(c *Config) *rootYAML {
	destinations := make([]destinationYAML, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		destinations = append(destinations, destinationYAML{
			SessionID: d.SessionID,
			Path:      d.Path,
			Telegram:  d.Telegram,
			Slack:     d.Slack,
		})
	}
	return &rootYAML{
		StateDir: c.StateDir,
		HTTP:     &httpYAML{Host: c.HTTP.Host, Port: c.HTTP.Port},
		Watcher:  &watcherYAML{CoalesceWindow: c.Watcher.CoalesceWindow.String()},
		Debounce: &debounceYAML{
			Telegram: &destinationDebounceYAML{
				MinEditGap: c.Debounce.Telegram.MinEditGap.String(),
				RateBudget: c.Debounce.Telegram.RateBudget,
				RateWindow: c.Debounce.Telegram.RateWindow.String(),
			},
			Slack: &destinationDebounceYAML{
				MinEditGap: c.Debounce.Slack.MinEditGap.String(),
				RateBudget: c.Debounce.Slack.RateBudget,
				RateWindow: c.Debounce.Slack.RateWindow.String(),
			},
		},
		IdleGrace:    c.IdleGrace.String(),
		Retention:    &retentionYAML{TombstoneSweepInterval: c.Retention.TombstoneSweepInterval.String()},
		Destinations: destinations,
		Credentials:  &credentialsYAML{TelegramTokenEnv: c.Credentials.TelegramTokenEnv, SlackTokenEnv: c.Credentials.SlackTokenEnv},
	}
}

// ApplyAttach records a runtime Attach call in c.Destinations, a no-op if
// an entry for this session/target already exists, per §4.12.
func (c *Config) ApplyAttach(sessionID, path string, target destination.Target) {
	for _, d := range c.Destinations {
		if d.SessionID == sessionID && entryMatches(d, target) {
			return
		}
	}
	entry := DestinationEntry{SessionID: sessionID, Path: path}
	switch target.Kind {
	case destination.KindTelegram:
		entry.Telegram = &TelegramTarget{ChatID: target.ChatID}
	case destination.KindSlack:
		entry.Slack = &SlackTarget{Channel: target.Channel}
	}
	c.Destinations = append(c.Destinations, entry)
}

// ApplyDetach removes the destination entry matching sessionID/target from
// c.Destinations, recording a runtime Detach call, per §4.12.
func (c *Config) ApplyDetach(sessionID string, target destination.Target) {
	kept := make([]DestinationEntry, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		if d.SessionID == sessionID && entryMatches(d, target) {
			continue
		}
		kept = append(kept, d)
	}
	c.Destinations = kept
}

func entryMatches(d DestinationEntry, target destination.Target) bool {
	switch target.Kind {
	case destination.KindTelegram:
		return d.Telegram != nil && d.Telegram.ChatID == target.ChatID
	case destination.KindSlack:
		return d.Slack != nil && d.Slack.Channel == target.Channel
	}
	return false
}
