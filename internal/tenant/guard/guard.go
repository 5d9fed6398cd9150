// Package guard enforces tenant isolation and RBAC for every document operation.
//
// The guard is fail-closed: any missing or malformed context, missing
// permission, or tenant mismatch yields a forbidden error. Cross-tenant access
// is only possible through AuthorizeScope with allTenants=true, and only for
// callers holding documents:read_all_tenants.
package guard

import (
	"context"
	"log/slog"

	"docflow/internal/tenant/metrics"
	"docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
)

type Guard struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func New(opts ...Option) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks that tc may perform perm on a resource owned by resourceTenant.
func (g *Guard) Authorize(ctx context.Context, tc *models.TenantContext, perm models.Permission, resourceTenant id.TenantID) error {
	if err := g.Check(ctx, tc, perm); err != nil {
		return err
	}
	if resourceTenant != tc.TenantID {
		return g.deny(ctx, tc, perm, "cross-tenant access denied")
	}
	return nil
}

// Check validates tc and its permission without a resource tenant. Used before
// the resource is loaded and for creation inside the caller's own tenant.
func (g *Guard) Check(ctx context.Context, tc *models.TenantContext, perm models.Permission) error {
	if err := tc.Validate(); err != nil {
		g.recordDenied(ctx, tc, perm, err.Error())
		return err
	}
	if !tc.Has(perm) {
		return g.deny(ctx, tc, perm, "permission denied")
	}
	return nil
}

// AuthorizeScope resolves the tenant filter for collection reads. A nil
// result means "all tenants" and is only returned when allTenants is requested
// by a caller holding documents:read_all_tenants.
func (g *Guard) AuthorizeScope(ctx context.Context, tc *models.TenantContext, perm models.Permission, allTenants bool) (*id.TenantID, error) {
	if err := g.Check(ctx, tc, perm); err != nil {
		return nil, err
	}
	if !allTenants {
		tenantID := tc.TenantID
		return &tenantID, nil
	}
	if !tc.Has(models.PermDocumentsReadAllTenant) {
		return nil, g.deny(ctx, tc, models.PermDocumentsReadAllTenant, "cross-tenant listing denied")
	}
	return nil, nil
}

func (g *Guard) deny(ctx context.Context, tc *models.TenantContext, perm models.Permission, reason string) error {
	g.recordDenied(ctx, tc, perm, reason)
	return dErrors.New(dErrors.CodeForbidden, reason)
}

func (g *Guard) recordDenied(ctx context.Context, tc *models.TenantContext, perm models.Permission, reason string) {
	if g.metrics != nil {
		g.metrics.IncDenied(string(perm))
	}
	if g.logger == nil {
		return
	}
	attrs := []any{"permission", perm, "reason", reason}
	if tc != nil {
		attrs = append(attrs, "tenant_id", tc.TenantID, "user_id", tc.UserID, "role", tc.Role)
	}
	g.logger.WarnContext(ctx, "tenant guard denied operation", attrs...)
}
