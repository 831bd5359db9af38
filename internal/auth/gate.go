package auth

import (
	"github.com/spec-kit/issue-service/internal/domain"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// Operation names a gated command or query.
type Operation string

const (
	OpCreateIssue     Operation = "create_issue"
	OpAssignIssue     Operation = "assign_issue"
	OpUpdateIssue     Operation = "update_issue"
	OpDeleteIssue     Operation = "delete_issue"
	OpListByStatus    Operation = "list_by_status"
	OpGetIssue        Operation = "get_issue"
	OpListLatest      Operation = "list_latest"
	OpViewHistory     Operation = "view_history"
	OpListTechnicians Operation = "list_technicians"
	OpListAll         Operation = "list_all"
	OpGetMe           Operation = "get_me"
	OpLogout          Operation = "logout"
)

const adminOnlyMessage = "not authorized as an admin"

// Policy maps each operation to the roles allowed to run it.
type Policy map[Operation][]domain.Role

// DefaultPolicy is the static role table: every mutation and every
// unscoped read is admin only; listing, profile and logout are open to both roles.
func DefaultPolicy() Policy {
	adminOnly := []domain.Role{domain.RoleAdmin}
	anyRole := []domain.Role{domain.RoleAdmin, domain.RoleTechnician}
	return Policy{
		OpCreateIssue:     adminOnly,
		OpAssignIssue:     adminOnly,
		OpUpdateIssue:     adminOnly,
		OpDeleteIssue:     adminOnly,
		OpListByStatus:    adminOnly,
		OpGetIssue:        adminOnly,
		OpListLatest:      adminOnly,
		OpViewHistory:     adminOnly,
		OpListTechnicians: adminOnly,
		OpListAll:         anyRole,
		OpGetMe:           anyRole,
		OpLogout:          anyRole,
	}
}

// Gate is a pure decision function over (role, operation). It holds no state
// beyond its immutable policy.
type Gate struct {
	policy Policy
}

// NewGate builds a gate. A nil policy falls back to DefaultPolicy.
func NewGate(policy Policy) *Gate {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Gate{policy: policy}
}

// Authorize returns nil when identity may run op, or a FORBIDDEN DomainError.
func (g *Gate) Authorize(identity domain.Identity, op Operation) error {
	allowed, known := g.policy[op]
	if !known || !identity.Role.Valid() || identity.UserID == "" {
		return apperrors.NewForbidden("not authorized")
	}
	for _, role := range allowed {
		if role == identity.Role {
			return nil
		}
	}
	if len(allowed) == 1 && allowed[0] == domain.RoleAdmin {
		return apperrors.NewForbidden(adminOnlyMessage)
	}
	return apperrors.NewForbidden("not authorized")
}
