// Package session holds the authenticated user's identity for one device,
// mirrored durably so every open tab of the same profile converges on the
// same session without a server push channel.
package session

import "time"

// RoleAdmin grants every permission unconditionally.
const RoleAdmin = "admin"

// Record is the authenticated user's identity.
type Record struct {
	UserID              string          `json:"userId"`
	DisplayName         string          `json:"displayName"`
	Roles               []string        `json:"roles"`
	ForcePasswordChange bool            `json:"forcePasswordChange"`
	Permissions         map[string]bool `json:"permissions"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// HasRole reports whether the record carries the given role.
func (r *Record) HasRole(role string) bool {
	if r == nil {
		return false
	}
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// HasPermission checks a permission fail-closed: admins hold every
// permission, everyone else only what their permission map grants. A nil
// record or absent map denies.
func HasPermission(r *Record, permission string) bool {
	if r == nil {
		return false
	}
	if r.HasRole(RoleAdmin) {
		return true
	}
	if r.Permissions == nil {
		return false
	}
	return r.Permissions[permission]
}
