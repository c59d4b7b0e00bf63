package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/topicboard/internal/auth"
	"github.com/alphabot-ai/topicboard/internal/config"
	"github.com/alphabot-ai/topicboard/internal/events"
	httpapp "github.com/alphabot-ai/topicboard/internal/http"
	"github.com/alphabot-ai/topicboard/internal/logging"
	"github.com/alphabot-ai/topicboard/internal/posts"
	"github.com/alphabot-ai/topicboard/internal/rate"
	"github.com/alphabot-ai/topicboard/internal/store/backend"
)

const version = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "topicboard",
		Usage:   "Topic-tagged posts with likes, dislikes, comments and expiry",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path of the client config file",
				Value:   defaultCLIConfigPath(),
				EnvVars: []string{"TOPICBOARD_CLI_CONFIG"},
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "Start the Topicboard server (default if no command)",
				Action:  runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: runMigrate,
			},
			registerCommand(),
			loginCommand(),
			logoutCommand(),
			postCommand(),
			actCommand(),
			listCommand(),
			topCommand(),
			statusCommand(),
		},
	}
}

func runServer(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	publisher, err := events.New(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer publisher.Close()

	tokens, err := auth.NewTokenService(cfg.Token)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(st, tokens, logger)
	engine := posts.NewEngine(st, publisher, logger)

	limiter := rate.NewMemory()
	go sweepLimiter(ctx, limiter, logger, time.Minute)

	server := httpapp.NewServer(st, authSvc, engine, limiter, cfg, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("topicboard listening", "addr", cfg.Addr, "env", cfg.Env, "nats", cfg.NATSURL != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepLimiter(ctx context.Context, limiter *rate.MemoryLimiter, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Debug("swept rate limit buckets", "count", n)
			}
		}
	}
}

func runMigrate(c *cli.Context) error {
	cfg := config.Load()
	st, err := backend.Open(c.Context, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer st.Close()
	fmt.Printf("Database %s is up to date (%s)\n", cfg.DatabaseURL, backendName(cfg.DatabaseURL))
	return nil
}

func backendName(databaseURL string) string {
	if backend.IsPostgres(databaseURL) {
		return "postgres"
	}
	return "sqlite"
}
