package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

const userColumns = `id, discord_id, username, global_name, avatar_url, email, last_login_at, created_at, updated_at, ` +
	`global_level, total_currency, total_messages, total_reactions, global_exp, account_created, first_seen, last_seen`

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by their internal ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user by id %d: %v", domain.ErrStoreUnavailable, id, err)
	}
	return &user, nil
}

// FindByDiscordID retrieves a user by their Discord user ID.
func (r *UserRepository) FindByDiscordID(ctx context.Context, discordID string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE discord_id = $1`, discordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: find user by discord id %s: %v", domain.ErrStoreUnavailable, discordID, err)
	}
	return &user, nil
}

// Upsert creates the user for profile or refreshes the existing row keyed by
// discord_id. The unique constraint makes concurrent first logins converge on
// one row.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.DiscordProfile, loginAt time.Time) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (discord_id, username, global_name, avatar_url, email, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (discord_id)
		 DO UPDATE SET username = EXCLUDED.username,
		               global_name = EXCLUDED.global_name,
		               avatar_url = EXCLUDED.avatar_url,
		               email = COALESCE(EXCLUDED.email, users.email),
		               last_login_at = EXCLUDED.last_login_at,
		               updated_at = NOW()
		 RETURNING `+userColumns,
		profile.ID, profile.Username, strPtr(profile.GlobalName), strPtr(profile.AvatarURL()), strPtr(profile.Email), loginAt,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert user %s: %v", domain.ErrStoreUnavailable, profile.ID, err)
	}
	return &result, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
