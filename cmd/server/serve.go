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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/acosmic/acosmibot-api/internal/config"
	"github.com/acosmic/acosmibot-api/internal/discord"
	"github.com/acosmic/acosmibot-api/internal/handler"
	"github.com/acosmic/acosmibot-api/internal/metrics"
	"github.com/acosmic/acosmibot-api/internal/repository"
	"github.com/acosmic/acosmibot-api/internal/service"
	"github.com/acosmic/acosmibot-api/internal/token"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireDiscord(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg, os.Stdout))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// stores are the OAuth state and revocation backends picked from config.
type stores struct {
	states      service.StateStore
	revocations service.RevocationStore
	sweepers    map[string]repository.Sweeper
	close       func() error
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, keeping login state in memory")
		states := repository.NewMemoryStateStore(cfg.StateTTL)
		revocations := repository.NewMemoryRevocationStore()
		return &stores{
			states:      states,
			revocations: revocations,
			sweepers: map[string]repository.Sweeper{
				"oauth_states":     states,
				"revoked_sessions": revocations,
			},
			close: func() error { return nil },
		}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	slog.Info("redis connected")

	return &stores{
		states:      repository.NewRedisStateStore(client, cfg.StateTTL),
		revocations: repository.NewRedisRevocationStore(client),
		close:       client.Close,
	}, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	slog.Info("database connected")

	if cfg.AutoMigrate {
		if err := repository.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	authMetrics, err := metrics.NewAuth(reg)
	if err != nil {
		return err
	}

	codec, err := token.NewCodec(token.CodecConfig{Secret: cfg.JWTSecret, Skew: cfg.ClockSkew})
	if err != nil {
		return fmt.Errorf("create token codec: %w", err)
	}

	discordClient, err := discord.NewClient(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURI,
		Scopes:       cfg.DiscordScopes,
		Timeout:      cfg.UpstreamTimeout,
		MaxAttempts:  cfg.ProfileMaxAttempts,
		OnRetry:      func(int, error) { authMetrics.ProfileRetry() },
	})
	if err != nil {
		return fmt.Errorf("create discord client: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	authSvc := service.NewAuthService(service.AuthDeps{
		Provider:    discordClient,
		States:      st.states,
		Resolver:    service.NewUserResolver(userRepo, nil),
		Codec:       codec,
		Revocations: st.revocations,
		Admins:      adminRepo,
		Metrics:     authMetrics,
	}, service.AuthConfig{
		SessionTTL: cfg.SessionTTL,
		StateTTL:   cfg.StateTTL,
	})

	e := newEcho(cfg, authSvc, reg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	for name, s := range st.sweepers {
		g.Go(func() error {
			return repository.RunSweeper(gctx, name, s, sweepInterval)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newEcho(cfg config.Config, auth handler.AuthFlow, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewAppValidator()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handler.RegisterRoutes(e, auth, handler.AuthHandlerConfig{
		SuccessURL:   cfg.LoginSuccessURL,
		FailureURL:   cfg.LoginFailureURL,
		TokenInURL:   cfg.LoginTokenInURL,
		CookieSecure: cfg.CookieSecure,
		StateTTL:     cfg.StateTTL,
	})

	return e
}
