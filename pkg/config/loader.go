package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// rootYAML is the raw shape of the single config document described in
// §4.12, with duration fields left as strings so mergeYAMLOverDefaults
// can fill gaps before resolve parses them.
type rootYAML struct {
	StateDir     string            `yaml:"state_dir"`
	HTTP         *httpYAML         `yaml:"http"`
	Watcher      *watcherYAML      `yaml:"watcher"`
	Debounce     *debounceYAML     `yaml:"debounce"`
	IdleGrace    string            `yaml:"idle_grace"`
	Retention    *retentionYAML    `yaml:"retention"`
	Destinations []destinationYAML `yaml:"destinations"`
	Credentials  *credentialsYAML  `yaml:"credentials"`
}

type httpYAML struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type watcherYAML struct {
	CoalesceWindow string `yaml:"coalesce_window"`
}

type destinationDebounceYAML struct {
	MinEditGap string `yaml:"min_edit_gap"`
	RateBudget int    `yaml:"rate_budget"`
	RateWindow string `yaml:"rate_window"`
}

type debounceYAML struct {
	Telegram *destinationDebounceYAML `yaml:"telegram"`
	Slack    *destinationDebounceYAML `yaml:"slack"`
}

type retentionYAML struct {
	TombstoneSweepInterval string `yaml:"tombstone_sweep_interval"`
}

type destinationYAML struct {
	SessionID string          `yaml:"session_id"`
	Path      string          `yaml:"path"`
	Telegram  *TelegramTarget `yaml:"telegram"`
	Slack     *SlackTarget    `yaml:"slack"`
}

type credentialsYAML struct {
	TelegramTokenEnv string `yaml:"telegram_token_env"`
	SlackTokenEnv    string `yaml:"slack_token_env"`
}

// Initialize loads the config document at path, expands environment
// variables, merges it over built-in defaults, and validates the result.
// This is the primary entry point used by cmd/tailwatch, grounded on the
// teacher's pkg/config/loader.go Initialize pipeline (load, expand, merge,
// resolve, validate).
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("loading configuration")

	raw, err := loadYAML(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := mergeYAMLOverDefaults(raw, defaultYAML()); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	cfg, err := resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("configuration loaded", "destinations", len(cfg.Destinations))
	return cfg, nil
}

func loadYAML(path string) (*rootYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var raw rootYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &raw, nil
}

// defaultYAML renders DefaultConfig back into the raw YAML shape so it
// can be merged with mergo against the user's document.
func defaultYAML() *rootYAML {
	d := DefaultConfig()
	return &rootYAML{
		StateDir: d.StateDir,
		HTTP:     &httpYAML{Host: d.HTTP.Host, Port: d.HTTP.Port},
		Watcher:  &watcherYAML{CoalesceWindow: d.Watcher.CoalesceWindow.String()},
		Debounce: &debounceYAML{
			Telegram: &destinationDebounceYAML{
				MinEditGap: d.Debounce.Telegram.MinEditGap.String(),
				RateBudget: d.Debounce.Telegram.RateBudget,
				RateWindow: d.Debounce.Telegram.RateWindow.String(),
			},
			Slack: &destinationDebounceYAML{
				MinEditGap: d.Debounce.Slack.MinEditGap.String(),
				RateBudget: d.Debounce.Slack.RateBudget,
				RateWindow: d.Debounce.Slack.RateWindow.String(),
			},
		},
		IdleGrace:   d.IdleGrace.String(),
		Retention:   &retentionYAML{TombstoneSweepInterval: d.Retention.TombstoneSweepInterval.String()},
		Credentials: &credentialsYAML{TelegramTokenEnv: d.Credentials.TelegramTokenEnv, SlackTokenEnv: d.Credentials.SlackTokenEnv},
	}
}

// resolve parses raw's duration strings and assembles the typed Config.
func resolve(raw *rootYAML) (*Config, error) {
	coalesce, err := parseDuration("watcher.coalesce_window", raw.Watcher.CoalesceWindow)
	if err != nil {
		return nil, err
	}
	idleGrace, err := parseDuration("idle_grace", raw.IdleGrace)
	if err != nil {
		return nil, err
	}
	sweep, err := parseDuration("retention.tombstone_sweep_interval", raw.Retention.TombstoneSweepInterval)
	if err != nil {
		return nil, err
	}
	telegramDebounce, err := resolveDestinationDebounce("debounce.telegram", raw.Debounce.Telegram)
	if err != nil {
		return nil, err
	}
	slackDebounce, err := resolveDestinationDebounce("debounce.slack", raw.Debounce.Slack)
	if err != nil {
		return nil, err
	}

	destinations := make([]DestinationEntry, 0, len(raw.Destinations))
	for _, d := range raw.Destinations {
		destinations = append(destinations, DestinationEntry{
			SessionID: d.SessionID,
			Path:      d.Path,
			Telegram:  d.Telegram,
			Slack:     d.Slack,
		})
	}

	return &Config{
		StateDir:     raw.StateDir,
		HTTP:         HTTPConfig{Host: raw.HTTP.Host, Port: raw.HTTP.Port},
		Watcher:      WatcherConfig{CoalesceWindow: coalesce},
		Debounce:     DebounceConfig{Telegram: telegramDebounce, Slack: slackDebounce},
		IdleGrace:    idleGrace,
		Retention:    RetentionConfig{TombstoneSweepInterval: sweep},
		Destinations: destinations,
		Credentials: CredentialsConfig{
			TelegramTokenEnv: raw.Credentials.TelegramTokenEnv,
			SlackTokenEnv:    raw.Credentials.SlackTokenEnv,
		},
	}, nil
}

func resolveDestinationDebounce(field string, y *destinationDebounceYAML) (DestinationDebounceConfig, error) {
	minGap, err := parseDuration(field+".min_edit_gap", y.MinEditGap)
	if err != nil {
		return DestinationDebounceConfig{}, err
	}
	rateWindow, err := parseDuration(field+".rate_window", y.RateWindow)
	if err != nil {
		return DestinationDebounceConfig{}, err
	}
	return DestinationDebounceConfig{
		MinEditGap: minGap,
		RateBudget: y.RateBudget,
		RateWindow: rateWindow,
	}, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, NewValidationError("config", field, "", fmt.Errorf("invalid duration %q: %w", value, err))
	}
	return d, nil
}

// validate checks invariants the rest of the system relies on: each
// destination entry names exactly one destination kind and a session id.
func validate(cfg *Config) error {
	for i, d := range cfg.Destinations {
		if d.SessionID == "" {
			return NewValidationError("destination", fmt.Sprintf("[%d]", i), "session_id", ErrMissingRequiredField)
		}
		hasTelegram := d.Telegram != nil
		hasSlack := d.Slack != nil
		if hasTelegram == hasSlack {
			return NewValidationError("destination", d.SessionID, "telegram/slack",
				fmt.Errorf("%w: exactly one of telegram or slack must be set", ErrInvalidValue))
		}
	}
	return nil
}
