// Package orchestrator wires every component into a running process
// (§4.11): configuration, state store, file watcher, per-destination
// debouncers, the destination registry, and the HTTP API, plus the
// startup attach pass and graceful shutdown sequence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sessionrelay/tailwatch/pkg/api"
	"github.com/sessionrelay/tailwatch/pkg/config"
	"github.com/sessionrelay/tailwatch/pkg/debounce"
	"github.com/sessionrelay/tailwatch/pkg/destination"
	"github.com/sessionrelay/tailwatch/pkg/destination/slack"
	"github.com/sessionrelay/tailwatch/pkg/destination/telegram"
	"github.com/sessionrelay/tailwatch/pkg/registry"
	"github.com/sessionrelay/tailwatch/pkg/statestore"
	"github.com/sessionrelay/tailwatch/pkg/watcher"
)

// shutdownGrace bounds how long Shutdown waits for in-flight debounced
// sends/edits to drain before the process exits.
const shutdownGrace = 5 * time.Second

// Orchestrator owns every long-lived component for one process lifetime.
type Orchestrator struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	cfgMu      sync.Mutex

	w        *watcher.Watcher
	store    *statestore.Store
	registry *registry.Registry
	server   *api.Server
}

// New constructs every component from cfg but does not start the watcher
// run loop or HTTP listener; call Run for that. configPath is the file cfg
// was loaded from; the registry writes attach/detach changes back into it,
// per §4.12.
func New(cfg *config.Config, configPath string, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := watcher.New(cfg.Watcher.CoalesceWindow)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: failed to init watcher: %w", err)
	}

	store, err := statestore.New(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: failed to init state store: %w", err)
	}

	debouncers, err := buildDebouncers(cfg)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		w:          w,
		store:      store,
	}

	reg := registry.New(registry.Config{
		Watcher:        w,
		Store:          store,
		Debouncers:     debouncers,
		IdleGrace:      cfg.IdleGrace,
		OnAttachChange: o.persistAttachChange,
	})
	o.registry = reg
	o.server = api.NewServer(reg)

	return o, nil
}

// persistAttachChange applies one Attach/Detach mutation to the in-memory
// config and writes it back to configPath, per §4.12. Errors are logged,
// not propagated, since the attach/detach call itself already succeeded
// against the live registry; a failed write-back only risks the change
// not surviving a restart, not losing it now.
func (o *Orchestrator) persistAttachChange(sessionID, path string, dest destination.Target, attached bool) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	if attached {
		o.cfg.ApplyAttach(sessionID, path, dest)
	} else {
		o.cfg.ApplyDetach(sessionID, dest)
	}

	if o.configPath == "" {
		return
	}
	if err := o.cfg.Save(o.configPath); err != nil {
		o.logger.Error("failed to persist config after attach change",
			"session_id", sessionID, "destination", dest.Key(), "attached", attached, "error", err)
	}
}

// buildDebouncers constructs one Debouncer per destination kind that has
// credentials configured. A kind with no token environment variable set
// is simply omitted; Attach against that kind then fails with a clear
// error rather than the process refusing to start.
func buildDebouncers(cfg *config.Config) (map[destination.Kind]*debounce.Debouncer, error) {
	out := make(map[destination.Kind]*debounce.Debouncer)

	if token := os.Getenv(cfg.Credentials.TelegramTokenEnv); token != "" {
		pub, err := telegram.New(token)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: failed to init telegram publisher: %w", err)
		}
		out[destination.KindTelegram] = debounce.New(debounce.Config{
			MinEditGap: cfg.Debounce.Telegram.MinEditGap,
			RateBudget: cfg.Debounce.Telegram.RateBudget,
			RateWindow: cfg.Debounce.Telegram.RateWindow,
		}, pub)
	}

	if token := os.Getenv(cfg.Credentials.SlackTokenEnv); token != "" {
		pub := slack.New(token)
		out[destination.KindSlack] = debounce.New(debounce.Config{
			MinEditGap: cfg.Debounce.Slack.MinEditGap,
			RateBudget: cfg.Debounce.Slack.RateBudget,
			RateWindow: cfg.Debounce.Slack.RateWindow,
		}, pub)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("orchestrator: no destination credentials configured (%s, %s)",
			cfg.Credentials.TelegramTokenEnv, cfg.Credentials.SlackTokenEnv)
	}
	return out, nil
}

// Run starts the watcher loop, applies every configured startup
// attachment, and serves HTTP until ctx is canceled, then shuts down
// every component in turn.
func (o *Orchestrator) Run(ctx context.Context, addr string) error {
	go o.w.Run()

	if err := o.registry.LoadPersisted(); err != nil {
		o.logger.Error("failed to load persisted session state", "error", err)
	}
	o.applyStartupAttachments()

	serveErr := make(chan error, 1)
	go func() {
		if err := o.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		o.logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			o.logger.Error("http server exited", "error", err)
		}
	}

	return o.Shutdown()
}

// applyStartupAttachments attaches every destination named in the loaded
// config, per §4.12. A failed attachment is logged and skipped rather
// than aborting startup, since one bad entry shouldn't block every other
// session from relaying.
func (o *Orchestrator) applyStartupAttachments() {
	for _, t := range o.cfg.Targets() {
		if err := o.registry.Attach(t.SessionID, t.Path, t.Target); err != nil {
			o.logger.Error("failed to attach configured destination",
				"session_id", t.SessionID, "path", t.Path, "error", err)
		}
	}
}

// Shutdown stops the HTTP server, drains the registry's debouncers, and
// closes the file watcher, in that order, so in-flight sends complete
// before the watcher's batch channel stops being read.
func (o *Orchestrator) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.Error("http server shutdown error", "error", err)
	}

	o.registry.Shutdown(shutdownGrace)

	if err := o.w.Close(); err != nil {
		o.logger.Error("watcher close error", "error", err)
	}
	return nil
}
