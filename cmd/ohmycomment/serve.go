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

	"github.com/v0xg/ohmycomment/internal/background"
	"github.com/v0xg/ohmycomment/internal/debuglog"
	"github.com/v0xg/ohmycomment/internal/server"
)

var (
	listenAddr string
	authToken  string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reply generator over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default: from config)")
	cmd.Flags().StringVar(&authToken, "token", "", "Bearer token clients must send")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if authToken != "" {
		cfg.Server.Token = authToken
	}

	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	debug := debuglog.New(cfg.Debug.Capacity)
	bus := background.NewBus(newBackground(cfg, store, debug, log), log)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.New(bus, store, debug, cfg.Server.Token, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	fmt.Printf("→ Listening on http://%s (Ctrl+C to stop)\n", cfg.Server.Listen)
	if cfg.Server.Token == "" {
		log.Warn().Msg("no token configured, the API is open to anyone who can reach it")
	}

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Println("→ Stopped")
	return nil
}
