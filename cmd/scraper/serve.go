package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScrapeIt/internal/api"
	"github.com/PentesterFlow/ScrapeIt/internal/auth"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
	"github.com/PentesterFlow/ScrapeIt/internal/shutdown"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

type serveFlags struct {
	addr    string
	token   string
	noCache bool
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the scraping HTTP API until SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.addr, "addr", "a", ":5000", "Listen address")
	cmd.Flags().StringVar(&f.token, "token", "", "Master API token (empty disables the token check)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Disable the response cache")

	return cmd
}

func runServe(cmd *cobra.Command, f *serveFlags) error {
	a, err := newApp(appOptions{Persistent: true})
	if err != nil {
		return err
	}
	s := a.settings
	if cmd.Flags().Changed("addr") {
		s.Server.Addr = f.addr
	}
	if cmd.Flags().Changed("token") {
		s.Server.MasterToken = f.token
	}
	if f.noCache {
		s.Server.CacheEnabled = false
	}

	h := shutdown.New(shutdown.Config{Timeout: s.Server.ShutdownTimeout, Logger: a.log})
	h.RegisterFunc("browsers", a.Close)

	tasks := crawler.NewManager(a.engine, a.store)
	h.RegisterServer("tasks", tasks)

	opts := []api.Option{
		api.WithLogger(a.log),
		api.WithMetrics(a.metrics),
		api.WithPool(a.pool),
		api.WithSampler(metrics.NewSystemSampler()),
	}
	if s.Server.MasterToken != "" {
		opts = append(opts, api.WithVerifier(auth.NewTokenVerifier(s.Server.MasterToken, a.store, a.log)))
	}
	server := api.NewServer(api.ConfigFromSettings(s), a.scraper, tasks, a.service, opts...)
	go server.Janitor(h.Context(), time.Minute)

	httpServer := &http.Server{
		Addr:              s.Server.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.RegisterServer("http", httpServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		a.log.Event(logger.InfoLevel).
			Str("addr", s.Server.Addr).
			Int("pool_capacity", s.Pool.Capacity).
			Bool("cache", s.Server.CacheEnabled).
			Bool("token_check", s.Server.MasterToken != "").
			Msg("ScrapeIt API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Event(logger.ErrorLevel).Err(err).Msg("HTTP server failed")
			errc <- err
			cancel()
		}
	}()

	result := h.Wait(ctx)
	a.log.Event(logger.InfoLevel).Fields(a.metrics.Snapshot().Summary()).Msg("Server stopped")
	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve on %s: %w", s.Server.Addr, err)
	default:
	}
	if result.HasErrors() {
		return fmt.Errorf("shutdown finished with %d errors: %w", len(result.Errors), errors.Join(result.Errors...))
	}
	return nil
}
