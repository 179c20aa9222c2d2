package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionrelay/tailwatch/pkg/destination"
)

func TestSaveThenInitializeRoundTripsDestinations(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	cfg.ApplyAttach("sess-999", "/var/log/agent/sess-999.jsonl",
		destination.Target{Kind: destination.KindTelegram, ChatID: "-100999"})
	require.NoError(t, cfg.Save(path))

	reloaded, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	targets := reloaded.Targets()
	found := false
	for _, target := range targets {
		if target.SessionID == "sess-999" {
			found = true
			assert.Equal(t, "/var/log/agent/sess-999.jsonl", target.Path)
			assert.Equal(t, destination.KindTelegram, target.Target.Kind)
			assert.Equal(t, "-100999", target.Target.ChatID)
		}
	}
	assert.True(t, found, "attached destination did not survive Save/Initialize round trip")
}

func TestApplyAttachIsIdempotent(t *testing.T) {
	cfg := &Config{}
	target := destination.Target{Kind: destination.KindSlack, Channel: "C1"}
	cfg.ApplyAttach("sess-1", "/tmp/sess-1.jsonl", target)
	cfg.ApplyAttach("sess-1", "/tmp/sess-1.jsonl", target)
	assert.Len(t, cfg.Destinations, 1)
}

func TestApplyDetachRemovesMatchingEntry(t *testing.T) {
	cfg := &Config{}
	telegram := destination.Target{Kind: destination.KindTelegram, ChatID: "1"}
	slack := destination.Target{Kind: destination.KindSlack, Channel: "C1"}
	cfg.ApplyAttach("sess-1", "/tmp/sess-1.jsonl", telegram)
	cfg.ApplyAttach("sess-1", "/tmp/sess-1.jsonl", slack)

	cfg.ApplyDetach("sess-1", telegram)

	require.Len(t, cfg.Destinations, 1)
	assert.NotNil(t, cfg.Destinations[0].Slack)
}
