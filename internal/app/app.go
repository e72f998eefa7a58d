package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"branchchat/pkg/banner"
	"branchchat/pkg/config"
	"branchchat/pkg/convo"
	"branchchat/pkg/dispatch"
	"branchchat/pkg/keypool"
	"branchchat/pkg/logger"
	"branchchat/pkg/store"
	"branchchat/pkg/sweeper"
	"branchchat/pkg/upstream"
)

// App encapsulates the server components and lifecycle. All shared state
// (the store handle, the credential pool, the dispatcher) is constructed
// here once and injected; there are no module-level singletons.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st   *store.Store
	cv   *convo.Service
	pool *keypool.Pool
	disp *dispatch.Dispatcher

	srv         *http.Server
	sweepCancel context.CancelFunc
}

// New initializes resources that do not require a running context: config
// validation, the store (connect once, reuse via the explicit handle), and
// the component graph. Call Run to start the HTTP server and block until
// shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	st, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	cfg := eff.Config
	pool := keypool.New(st)
	up := upstream.New(cfg.UpstreamBaseURL(), cfg.UpstreamModel(), cfg.Upstream.ReasoningEffort, cfg.UpstreamTimeout())
	disp := dispatch.New(pool, up, cfg.CooldownWindow())

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		st:        st,
		cv:        convo.New(st),
		pool:      pool,
		disp:      disp,
	}
	return a, nil
}

// Run starts the sweeper and the HTTP server, and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, err := sweeper.Start(ctx, a.pool, *a.eff.Config)
	if err != nil {
		return err
	}
	a.sweepCancel = cancel

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.stop()
		return nil
	case err := <-errCh:
		a.stop()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) stop() {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("http_shutdown_failed", "error", err)
		}
	}
	if err := a.st.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}
