// Package tenant exposes tenant isolation primitives: the verified caller
// context and the guard that enforces scoping and RBAC.
package tenant

import (
	"log/slog"

	"docflow/internal/tenant/guard"
	"docflow/internal/tenant/metrics"
	"docflow/internal/tenant/models"
)

type (
	Context    = models.TenantContext
	Role       = models.Role
	Permission = models.Permission
	Guard      = guard.Guard
)

// NewGuard constructs the tenant guard with logging and metrics.
func NewGuard(logger *slog.Logger, m *metrics.Metrics) *Guard {
	return guard.New(guard.WithLogger(logger), guard.WithMetrics(m))
}
