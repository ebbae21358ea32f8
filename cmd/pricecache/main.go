package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/pricecache/internal/config"
	"github.com/sawpanic/pricecache/internal/engine"
	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/httpapi"
	"github.com/sawpanic/pricecache/internal/store"
	"github.com/sawpanic/pricecache/internal/upstream"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "pricecache",
		Short: "Read-through cache fronting a slow on-chain quote router",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(serveCmd(), warmCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrapLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(configPath)
}

func buildEngine(cfg *config.Config, promReg *prometheus.Registry, logger zerolog.Logger) (*engine.Engine, error) {
	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	router := upstream.NewHTTPRouter(upstream.DefaultHTTPConfig(cfg.UpstreamURL))

	warmup := make([]engine.WarmupPair, 0, len(cfg.Warmup))
	for _, wp := range cfg.Warmup {
		warmup = append(warmup, engine.WarmupPair{
			Chain:    wp.Chain,
			TokenIn:  wp.TokenIn,
			TokenOut: wp.TokenOut,
			Tier:     cfg.WarmupTierFor(wp.Tier),
		})
	}

	eng := engine.New(engine.Config{
		Policy:        cfg.Policy(),
		Workers:       cfg.Workers,
		BreakerConfig: cfg.BreakerSettings(),
		WarmupPairs:   warmup,
	}, st, router, promReg, logger)

	return eng, nil
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisStore(cfg.Store.Redis.Addr), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func serveCmd() *cobra.Command {
	var addr string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := bootstrapLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Host = addr
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			promReg := prometheus.NewRegistry()
			eng, err := buildEngine(cfg, promReg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			eng.Start(ctx)

			srv := httpapi.New(httpapi.Config{
				Host:           cfg.Server.Host,
				Port:           cfg.Server.Port,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				IdleTimeout:    cfg.Server.IdleTimeout,
				RequestTimeout: 5 * time.Second,
			}, eng, promReg, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				cancel()
				return err
			case <-sigCh:
				logger.Info().Msg("shutdown signal received")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("error shutting down http server")
			}
			cancel()
			eng.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func warmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Warm the cache for every configured pair and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := bootstrapLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			promReg := prometheus.NewRegistry()
			eng, err := buildEngine(cfg, promReg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			eng.Start(ctx)
			defer eng.Stop()

			for _, wp := range cfg.Warmup {
				req := engine.Request{
					Chain:     wp.Chain,
					TokenIn:   wp.TokenIn,
					TokenOut:  wp.TokenOut,
					Amount:    "1000",
					Direction: fingerprint.ExactIn,
				}
				if _, err := eng.GetQuote(ctx, req); err != nil {
					logger.Warn().Str("chain", wp.Chain).Err(err).Msg("warm-up fetch failed")
				}
			}
			logger.Info().Int("pairs", len(cfg.Warmup)).Msg("warm-up complete")
			return nil
		},
	}
}
