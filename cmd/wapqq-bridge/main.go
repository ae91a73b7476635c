package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"

	"github.com/cubesugarcheese/wapqq-bridge/pkg/archive"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/bridge"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/config"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/mirai"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/routes"
	"github.com/cubesugarcheese/wapqq-bridge/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config.yaml (searched in . and ./config when empty)")
	flag.Parse()

	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	stores, err := store.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("opening archive database failed", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}

	client := mirai.NewClient(cfg.Platform.WSHost, cfg.VerifyKey, cfg.Account)
	mgr := archive.NewManager(stores, bridge.NewLookup(client))
	bridge.New(client, mgr).Attach()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go client.Run(ctx)

	var wr routes.WebRouter
	srv := wr.Initialize(cfg, mgr, client)
	go func() {
		slog.Info("web ui listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("web server shutdown incomplete", "error", err)
	}
	client.Close()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		slog.Warn("archive shutdown incomplete", "error", err)
	}
	if err := stores.Close(); err != nil {
		slog.Warn("closing archive database failed", "error", err)
	}
}
