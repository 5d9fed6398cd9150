package models

import (
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/strings"
)

// Role is the coarse RBAC role carried by a session.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleClientUser Role = "CLIENT_USER"
)

func (r Role) IsValid() bool {
	return r == RoleSuperAdmin || r == RoleClientUser
}

// Permission names a single guarded action.
type Permission string

const (
	PermDocumentsCreate        Permission = "documents:create"
	PermDocumentsRead          Permission = "documents:read"
	PermDocumentsUpdate        Permission = "documents:update"
	PermDocumentsDelete        Permission = "documents:delete"
	PermDocumentsReadAllTenant Permission = "documents:read_all_tenants"
	PermAuditRead              Permission = "audit:read"
	PermWorkflowApprove        Permission = "workflow:approve"
	PermWorkflowReconcile      Permission = "workflow:reconcile"
	PermWorkflowRevise         Permission = "workflow:revise"
	PermWorkflowArchive        Permission = "workflow:archive"
	PermWorkflowReject         Permission = "workflow:reject"
)

var clientUserCeiling = []Permission{
	PermDocumentsCreate,
	PermDocumentsRead,
	PermDocumentsUpdate,
	PermWorkflowApprove,
	PermWorkflowReconcile,
	PermWorkflowRevise,
	PermAuditRead,
}

var superAdminCeiling = append(append([]Permission{}, clientUserCeiling...),
	PermDocumentsDelete,
	PermWorkflowArchive,
	PermWorkflowReject,
	PermDocumentsReadAllTenant,
)

// Ceiling returns the maximum permission set a role can ever hold.
func (r Role) Ceiling() map[Permission]struct{} {
	var perms []Permission
	switch r {
	case RoleSuperAdmin:
		perms = superAdminCeiling
	case RoleClientUser:
		perms = clientUserCeiling
	}
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

// TenantContext is the verified caller identity. It is passed explicitly to
// every operation; nothing reads it from global state.
//
// Invariants:
//   - TenantID and UserID are non-nil
//   - Role is SUPER_ADMIN or CLIENT_USER
//   - Effective permissions never exceed the role ceiling
type TenantContext struct {
	TenantID    id.TenantID
	UserID      id.UserID
	Role        Role
	Permissions []Permission
}

// NewTenantContext parses raw session claims into a TenantContext.
func NewTenantContext(tenantID, userID, role string, permissions []string) (*TenantContext, error) {
	tid, err := id.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	uid, err := id.ParseUserID(userID)
	if err != nil {
		return nil, err
	}
	r := Role(role)
	if !r.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	perms := make([]Permission, 0, len(permissions))
	for _, p := range strings.NormalizeList(permissions, true) {
		perms = append(perms, Permission(p))
	}
	return &TenantContext{TenantID: tid, UserID: uid, Role: r, Permissions: perms}, nil
}

// Validate reports whether the context is well formed.
func (tc *TenantContext) Validate() error {
	if tc == nil {
		return dErrors.New(dErrors.CodeForbidden, "missing tenant context")
	}
	if tc.TenantID.IsNil() || tc.UserID.IsNil() {
		return dErrors.New(dErrors.CodeForbidden, "malformed tenant context")
	}
	if !tc.Role.IsValid() {
		return dErrors.New(dErrors.CodeForbidden, "unknown role")
	}
	return nil
}

// Effective returns the context's permissions clipped to its role ceiling.
// An empty permission list grants the full ceiling.
func (tc *TenantContext) Effective() map[Permission]struct{} {
	ceiling := tc.Role.Ceiling()
	if len(tc.Permissions) == 0 {
		return ceiling
	}
	out := make(map[Permission]struct{}, len(tc.Permissions))
	for _, p := range tc.Permissions {
		if _, ok := ceiling[p]; ok {
			out[p] = struct{}{}
		}
	}
	return out
}

// Has reports whether the effective permission set contains p.
func (tc *TenantContext) Has(p Permission) bool {
	_, ok := tc.Effective()[p]
	return ok
}

// Actor renders the audit actor string for a user-driven action.
func (tc *TenantContext) Actor() string {
	return "user:" + tc.UserID.String()
}
