package security

import (
	"sort"
	"strings"

	"eventmaster-auth/internal/model"
)

// ClaimSet is the canonical identity carried by an access token.
type ClaimSet struct {
	Subject string
	Name    string
	Roles   []string
}

// BuildClaims derives the claim set for user. Role names are de-duplicated
// case-insensitively and sorted so equal inputs always produce equal claims.
func BuildClaims(user model.User, roles []model.Role) ClaimSet {
	return ClaimSet{
		Subject: user.ID,
		Name:    user.Login,
		Roles:   normalizeRoles(model.RoleNames(roles)),
	}
}

func (c ClaimSet) HasRole(name string) bool {
	for _, role := range c.Roles {
		if strings.EqualFold(role, name) {
			return true
		}
	}
	return false
}

func (c ClaimSet) HasAnyRole(names ...string) bool {
	for _, name := range names {
		if c.HasRole(name) {
			return true
		}
	}
	return false
}

func normalizeRoles(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
