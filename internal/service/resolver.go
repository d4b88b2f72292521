package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

// UserStore defines the user data access interface consumed by the services.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	Upsert(ctx context.Context, profile domain.DiscordProfile, loginAt time.Time) (*domain.User, error)
}

// UserResolver maps Discord profiles to user records.
type UserResolver struct {
	users UserStore
	now   func() time.Time
	group singleflight.Group
}

// NewUserResolver creates a new UserResolver.
func NewUserResolver(users UserStore, now func() time.Time) *UserResolver {
	if now == nil {
		now = time.Now
	}
	return &UserResolver{users: users, now: now}
}

// Resolve creates the user for profile on first login and refreshes the
// display fields and last login time afterwards. Identical concurrent
// resolves in this process share one store call; the store's unique key on
// discord_id covers everything else.
func (r *UserResolver) Resolve(ctx context.Context, profile domain.DiscordProfile) (*domain.User, error) {
	key := strings.Join([]string{profile.ID, profile.Username, profile.GlobalName, profile.Avatar, profile.Email}, "\x00")

	// The call is shared with other callers, so one caller's cancellation
	// must not fail it for the rest.
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.users.Upsert(context.WithoutCancel(ctx), profile, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("resolve discord user %s: %w", profile.ID, err)
	}
	if shared {
		slog.Debug("shared concurrent user resolve", "discord_id", profile.ID)
	}

	user := *v.(*domain.User)
	return &user, nil
}

// Lookup returns the current record for an internal user id.
func (r *UserResolver) Lookup(ctx context.Context, id int64) (*domain.User, error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", id, err)
	}
	return user, nil
}
