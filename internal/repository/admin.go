package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

// AdminRepository reads the bot's admin_users table.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindByDiscordID returns the admin entry for discordID or domain.ErrNotFound.
func (r *AdminRepository) FindByDiscordID(ctx context.Context, discordID string) (*domain.AdminUser, error) {
	var admin domain.AdminUser
	err := r.db.GetContext(ctx, &admin,
		`SELECT discord_id, discord_username, role, created_at
		 FROM admin_users WHERE discord_id = $1`, discordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find admin %s: %v", domain.ErrStoreUnavailable, discordID, err)
	}
	return &admin, nil
}

// List returns all admin entries, oldest first.
func (r *AdminRepository) List(ctx context.Context) ([]domain.AdminUser, error) {
	admins := []domain.AdminUser{}
	err := r.db.SelectContext(ctx, &admins,
		`SELECT discord_id, discord_username, role, created_at
		 FROM admin_users ORDER BY created_at, discord_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list admins: %v", domain.ErrStoreUnavailable, err)
	}
	return admins, nil
}
