package jwttoken

import (
	"docflow/internal/tenant/models"
	dErrors "docflow/pkg/domain-errors"
)

// TenantValidator adapts JWTService to the auth middleware, turning verified
// claims into a TenantContext.
type TenantValidator struct {
	service *JWTService
}

func NewTenantValidator(service *JWTService) *TenantValidator {
	return &TenantValidator{service: service}
}

func (a *TenantValidator) ValidateToken(tokenString string) (*models.TenantContext, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	tc, err := models.NewTenantContext(claims.TenantID, claims.UserID, claims.Role, claims.Permissions)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session claims")
	}
	return tc, nil
}
