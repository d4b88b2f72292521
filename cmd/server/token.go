package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acosmic/acosmibot-api/internal/config"
	"github.com/acosmic/acosmibot-api/internal/repository"
	"github.com/acosmic/acosmibot-api/internal/service"
	"github.com/acosmic/acosmibot-api/internal/token"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for an existing user",
		Long: `Mint a session token for an existing user without going through Discord.
The token is signed with JWT_SECRET and printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			slog.SetDefault(newLogger(cfg, os.Stderr))

			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			codec, err := token.NewCodec(token.CodecConfig{Secret: cfg.JWTSecret, Skew: cfg.ClockSkew})
			if err != nil {
				return fmt.Errorf("create token codec: %w", err)
			}

			authSvc := service.NewAuthService(service.AuthDeps{
				Resolver: service.NewUserResolver(repository.NewUserRepository(db), nil),
				Codec:    codec,
			}, service.AuthConfig{SessionTTL: cfg.SessionTTL})

			raw, claims, err := authSvc.IssueToken(cmd.Context(), userID, ttl)
			if err != nil {
				return fmt.Errorf("issue token for user %d: %w", userID, err)
			}

			slog.Info("session token issued", "user_id", claims.Subject, "expires_at", claims.ExpiresAt)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), raw)
			return err
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "internal user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to SESSION_TTL)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
