package testutil

import (
	"net/http"

	"github.com/google/uuid"

	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
)

// NewTenantContext returns a caller in a fresh tenant with the role's full
// permission ceiling.
func NewTenantContext(role tenantmodels.Role) *tenantmodels.TenantContext {
	return &tenantmodels.TenantContext{
		TenantID: id.TenantID(uuid.New()),
		UserID:   id.UserID(uuid.New()),
		Role:     role,
	}
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
