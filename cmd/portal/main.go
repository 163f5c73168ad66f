package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"danaya.health/portal/internal/authn"
	"danaya.health/portal/internal/config"
	"danaya.health/portal/internal/httpapi"
	"danaya.health/portal/internal/obs"
	"danaya.health/portal/internal/portal"
	"danaya.health/portal/internal/session"
	"danaya.health/portal/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	state, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	cancel()
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}

	client := authn.NewClient(cfg.Auth.URL, cfg.Registry.URL, authn.WithTimeout(cfg.Auth.LoginTimeout.Duration))
	svc, err := portal.NewService(client, client, session.NewStore(state),
		portal.WithLoginTimeout(cfg.Auth.LoginTimeout.Duration),
		portal.WithContextTimeout(cfg.Registry.ContextTimeout.Duration),
		portal.WithLoginLimit(cfg.Limits.LoginPerMinute, cfg.Limits.LoginBurst),
	)
	if err != nil {
		log.Fatalf("portal: %v", err)
	}

	// A token left by the previous run is reused when the auth service still accepts it.
	ctx, cancel = context.WithTimeout(context.Background(), cfg.Auth.LoginTimeout.Duration)
	if snap, err := svc.Resume(ctx); err == nil {
		obs.LogJSON("info", "session resumed", map[string]any{"role": string(snap.Identity.Role), "state": snap.State.String()})
	} else if !errors.Is(err, portal.ErrNoSavedSession) {
		obs.LogJSON("warn", "session not resumed", map[string]any{"error": err})
	}
	cancel()

	api := httpapi.New(svc, version,
		httpapi.WithReadyProbe(httpapi.ReadyProbe{Store: state}),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		httpapi.WithLoginRateLimit(cfg.Limits.HTTPBurst, cfg.Limits.HTTPPerSecond),
	)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.Auth.LoginTimeout.Duration + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.LogJSON("info", "starting portal", map[string]any{"version": version, "addr": srv.Addr, "store": cfg.Store.Driver})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.LogJSON("info", "shutting down", nil)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	svc.Close()
	_ = state.Close()
	obs.LogJSON("info", "stopped", nil)
}
