package auth

import (
	"context"
	"fmt"

	"crewline/internal/domain"
)

const (
	PermProjectCreate     = "project.create"
	PermProjectRead       = "project.read"
	PermProjectCancel     = "project.cancel"
	PermProjectDispute    = "project.dispute"
	PermProjectReconcile  = "project.reconcile"
	PermApplicationCreate = "application.create"
	PermApplicationDecide = "application.decide"
	PermWorkStart         = "work.start"
	PermWorkSubmit        = "work.submit"
	PermWorkReview        = "work.review"
	PermReviewCreate      = "review.create"
	PermDashboardRead     = "dashboard.read"
	PermEventsRead        = "events.read"
	PermAPIKeyManage      = "apikey.manage"
)

var rolePermissions = map[domain.Role][]string{
	domain.RoleClient: {
		PermProjectCreate, PermProjectRead, PermProjectCancel, PermProjectDispute,
		PermApplicationDecide, PermWorkReview, PermReviewCreate, PermDashboardRead, PermEventsRead,
	},
	domain.RoleProfessional: {
		PermProjectRead, PermProjectDispute, PermApplicationCreate, PermWorkStart, PermWorkSubmit,
		PermReviewCreate, PermDashboardRead, PermEventsRead,
	},
}

// Principal is the authenticated caller.
type Principal struct {
	ActorID string
	Role    domain.Role
	// Token is the raw bearer token, forwarded to the remote store for row-level security.
	Token string
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Role       domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Permission, e.Role)
}

// Can reports whether role carries perm. Admin carries every permission.
func Can(role domain.Role, perm string) bool {
	if role == domain.RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

func Require(p Principal, perm string) error {
	if p.ActorID == "" || !Can(p.Role, perm) {
		return ForbiddenError{Permission: perm, Role: p.Role}
	}
	return nil
}

// Permissions lists what role may do.
func Permissions(role domain.Role) []string {
	if role == domain.RoleAdmin {
		var all []string
		seen := map[string]bool{}
		for _, r := range []domain.Role{domain.RoleClient, domain.RoleProfessional} {
			for _, p := range rolePermissions[r] {
				if !seen[p] {
					seen[p] = true
					all = append(all, p)
				}
			}
		}
		return append(all, PermProjectReconcile, PermAPIKeyManage)
	}
	out := make([]string, len(rolePermissions[role]))
	copy(out, rolePermissions[role])
	return out
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
