package config

import "time"

// DefaultConfig returns the built-in defaults applied before the user's
// YAML is merged on top, per §4.12.
func DefaultConfig() *Config {
	return &Config{
		StateDir: "./state",
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Watcher: WatcherConfig{
			CoalesceWindow: 100 * time.Millisecond,
		},
		Debounce: DebounceConfig{
			Telegram: DestinationDebounceConfig{
				MinEditGap: 1 * time.Second,
				RateBudget: 20,
				RateWindow: 60 * time.Second,
			},
			Slack: DestinationDebounceConfig{
				MinEditGap: 700 * time.Millisecond,
				RateBudget: 20,
				RateWindow: 60 * time.Second,
			},
		},
		IdleGrace: 60 * time.Second,
		Retention: RetentionConfig{
			TombstoneSweepInterval: 5 * time.Minute,
		},
		Credentials: CredentialsConfig{
			TelegramTokenEnv: "TELEGRAM_BOT_TOKEN",
			SlackTokenEnv:    "SLACK_BOT_TOKEN",
		},
	}
}
