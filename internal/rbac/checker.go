package rbac

import (
	"context"
	"strings"
)

// Checker evaluates a role table whose entries may end in "*" to grant a
// whole prefix, e.g. "grades:*".
type Checker struct {
	rules map[string][]string
}

func NewChecker(rules map[string][]string) *Checker {
	if rules == nil {
		rules = RolePermissions
	}
	return &Checker{rules: rules}
}

func (c *Checker) Has(role, perm string) bool {
	for _, pattern := range c.rules[role] {
		if matchPerm(pattern, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

// Granted expands the role's patterns against AllPermissions.
func (c *Checker) Granted(role string) []string {
	out := []string{}
	for _, p := range AllPermissions {
		if c.Has(role, p) {
			out = append(out, p)
		}
	}
	return out
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, "*")
	return ok && strings.HasPrefix(perm, prefix)
}

var defaultChecker = NewChecker(nil)

// Granted is Checker.Granted on the default policy.
func Granted(role string) []string { return defaultChecker.Granted(role) }

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
