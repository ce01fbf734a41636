package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/transport/http/middleware"
	"github.com/vedran77/pulsefeed/internal/transport/ws"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live page feeds over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.ServerPort = port
			}
			origins, _ := cmd.Flags().GetStringSlice("origin")
			return serve(cmd.Context(), cfg, origins)
		},
	}
	cmd.Flags().String("port", "", "listen port (overrides SERVER_PORT)")
	cmd.Flags().StringSlice("origin", nil, "allowed WebSocket origin patterns; empty accepts any origin")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, origins []string) error {
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := ws.Options{
		Store:        store,
		FeedLimit:    cfg.FeedLimit,
		WriteTimeout: cfg.WriteTimeout,
	}
	feedCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	if feedCache != nil {
		defer feedCache.Close()
		opts.Cache = feedCache
	}

	hub := ws.NewHub(opts, logger)

	acceptOpts := &websocket.AcceptOptions{InsecureSkipVerify: len(origins) == 0, OriginPatterns: origins}
	auth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status": "ok", "connections": %d}`, hub.Count())
	})
	mux.Handle("GET /ws", auth(ws.ServeWS(hub, acceptOpts)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
