package domain

import "time"

// AdminRole is the privilege level of a bot administrator.
type AdminRole string

const (
	AdminRoleAdmin      AdminRole = "admin"
	AdminRoleSuperAdmin AdminRole = "super_admin"
)

// AdminUser is a row of the bot's admin_users table.
type AdminUser struct {
	DiscordID       string    `json:"discord_id" db:"discord_id"`
	DiscordUsername string    `json:"discord_username" db:"discord_username"`
	Role            AdminRole `json:"role" db:"role"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// HasRole reports whether the admin holds one of roles. An empty list
// accepts any admin.
func (a AdminUser) HasRole(roles ...AdminRole) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
