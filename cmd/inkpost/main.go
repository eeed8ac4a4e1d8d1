package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkpost/inkpost/internal/auth"
	"github.com/inkpost/inkpost/internal/config"
	httpapp "github.com/inkpost/inkpost/internal/http"
	"github.com/inkpost/inkpost/internal/rate"
	"github.com/inkpost/inkpost/internal/store/backend"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "inkpost",
		Usage:   "a small blogging platform: server and command-line client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "server base URL for client commands",
				EnvVars: []string{"INKPOST_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			return runServer(c.Context)
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "start the HTTP server (default when no command is given)",
				Action: func(c *cli.Context) error {
					return runServer(c.Context)
				},
			},
			registerCommand(),
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			postsCommand(),
			showCommand(),
			createCommand(),
			editCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(parent context.Context) error {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	openCtx, cancel := context.WithTimeout(parent, 15*time.Second)
	st, err := backend.Open(openCtx, cfg.DatabaseURL, cfg.DBMaxPool)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", backend.Detect(cfg.DatabaseURL), err)
	}
	defer st.Close()
	log.Printf("using %s store", backend.Detect(cfg.DatabaseURL))

	var limiter rate.Limiter = rate.NewMemory()
	if cfg.Redis.Addr != "" {
		dialCtx, cancel := context.WithTimeout(parent, 5*time.Second)
		rdb, err := rate.Dial(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		limiter = rate.NewRedis(rdb, logger)
		log.Printf("rate limits shared through redis at %s", cfg.Redis.Addr)
	}

	authSvc, err := auth.NewService(st, auth.Options{
		Secret:   []byte(cfg.JWTSecret),
		TokenTTL: cfg.TokenTTL,
		HashCost: cfg.BcryptCost,
	})
	if err != nil {
		return err
	}

	server, err := httpapp.NewServer(st, authSvc, limiter, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("inkpost listening on %s (%s)", cfg.Addr, cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
