package config

import "time"

// HTTPConfig controls the API surface's listen address, per §6.
type HTTPConfig struct {
	Host string
	Port int
}

// WatcherConfig tunes the File Watcher's notification coalescing, per
// §4.3.
type WatcherConfig struct {
	CoalesceWindow time.Duration
}

// DestinationDebounceConfig tunes one destination kind's debounce/rate
// behaviour, per §4.7.
type DestinationDebounceConfig struct {
	MinEditGap time.Duration
	RateBudget int
	RateWindow time.Duration
}

// DebounceConfig groups per-destination-kind debounce tuning.
type DebounceConfig struct {
	Telegram DestinationDebounceConfig
	Slack    DestinationDebounceConfig
}

// RetentionConfig controls the background sweep that reclaims tombstoned
// session state.
type RetentionConfig struct {
	TombstoneSweepInterval time.Duration
}

// TelegramTarget is a destination entry's Telegram half.
type TelegramTarget struct {
	ChatID string
}

// SlackTarget is a destination entry's Slack half.
type SlackTarget struct {
	Channel string
}

// DestinationEntry is one attach() to apply at startup: a session's
// transcript path plus exactly one destination to relay it to. Multiple
// entries may share a session_id to attach several destinations to the
// same transcript, per §4.12's example.
type DestinationEntry struct {
	SessionID string
	Path      string
	Telegram  *TelegramTarget
	Slack     *SlackTarget
}

// CredentialsConfig names the environment variables holding each
// destination kind's bot token, per §4.12's `*_env` indirection.
type CredentialsConfig struct {
	TelegramTokenEnv string
	SlackTokenEnv    string
}

// Config is the fully resolved, typed configuration object returned by
// Initialize: the user's YAML merged over built-in defaults, with
// duration strings parsed.
type Config struct {
	StateDir     string
	HTTP         HTTPConfig
	Watcher      WatcherConfig
	Debounce     DebounceConfig
	IdleGrace    time.Duration
	Retention    RetentionConfig
	Destinations []DestinationEntry
	Credentials  CredentialsConfig
}
