package domain

import (
	"fmt"
	"strconv"
	"time"
)

const discordCDN = "https://cdn.discordapp.com"

// User is the internal identity record kept in the bot database.
// Exactly one row exists per Discord user id.
type User struct {
	ID          int64     `json:"id" db:"id"`
	DiscordID   string    `json:"discord_id" db:"discord_id"`
	Username    string    `json:"username" db:"username"`
	GlobalName  *string   `json:"global_name,omitempty" db:"global_name"`
	AvatarURL   *string   `json:"avatar,omitempty" db:"avatar_url"`
	Email       *string   `json:"-" db:"email"`
	LastLoginAt time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	BotStats
}

// BotStats are the per-user counters maintained by the bot. The API only
// reads them.
type BotStats struct {
	Level          int64      `json:"level" db:"global_level"`
	Currency       int64      `json:"currency" db:"total_currency"`
	TotalMessages  int64      `json:"total_messages" db:"total_messages"`
	TotalReactions int64      `json:"total_reactions" db:"total_reactions"`
	GlobalExp      int64      `json:"global_exp" db:"global_exp"`
	AccountCreated *time.Time `json:"account_created" db:"account_created"`
	FirstSeen      *time.Time `json:"first_seen" db:"first_seen"`
	LastSeen       *time.Time `json:"last_seen" db:"last_seen"`
}

// DisplayName prefers the Discord global name over the username.
func (u User) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

// PublicUser is the subset of a User exposed over the API.
type PublicUser struct {
	ID          int64     `json:"id"`
	DiscordID   string    `json:"discord_id"`
	Username    string    `json:"username"`
	Name        string    `json:"name"`
	GlobalName  *string   `json:"global_name,omitempty"`
	Avatar      string    `json:"avatar"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`

	BotStats
}

// Public returns the API view of the user, falling back to Discord's default
// avatar when none is stored.
func (u User) Public() PublicUser {
	avatar := DefaultAvatarURL(u.DiscordID)
	if u.AvatarURL != nil && *u.AvatarURL != "" {
		avatar = *u.AvatarURL
	}
	return PublicUser{
		ID:          u.ID,
		DiscordID:   u.DiscordID,
		Username:    u.Username,
		Name:        u.DisplayName(),
		GlobalName:  u.GlobalName,
		Avatar:      avatar,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		BotStats:    u.BotStats,
	}
}

// DiscordProfile is the user returned by Discord's current-user endpoint.
// It is never persisted as-is.
type DiscordProfile struct {
	ID         string
	Username   string
	GlobalName string
	Avatar     string
	Email      string
}

// AvatarURL returns the CDN URL of the profile's avatar, or the default
// embed avatar when the user has none.
func (p DiscordProfile) AvatarURL() string {
	if p.Avatar == "" {
		return DefaultAvatarURL(p.ID)
	}
	ext := "png"
	if len(p.Avatar) > 2 && p.Avatar[:2] == "a_" {
		ext = "gif"
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s", discordCDN, p.ID, p.Avatar, ext)
}

// DefaultAvatarURL returns one of Discord's embed avatars picked from the user id.
func DefaultAvatarURL(discordID string) string {
	id, err := strconv.ParseUint(discordID, 10, 64)
	if err != nil {
		id = 0
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", discordCDN, id%5)
}
