package guard

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
)

type GuardSuite struct {
	suite.Suite
	guard   *Guard
	ctx     context.Context
	tenantA id.TenantID
	tenantB id.TenantID
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.guard = New()
	s.ctx = context.Background()
	s.tenantA = id.TenantID(uuid.New())
	s.tenantB = id.TenantID(uuid.New())
}

func (s *GuardSuite) user(tenantID id.TenantID, role models.Role, perms ...models.Permission) *models.TenantContext {
	return &models.TenantContext{
		TenantID:    tenantID,
		UserID:      id.UserID(uuid.New()),
		Role:        role,
		Permissions: perms,
	}
}

func (s *GuardSuite) TestFailClosed() {
	s.Run("nil context denied", func() {
		err := s.guard.Check(s.ctx, nil, models.PermDocumentsRead)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("nil tenant denied", func() {
		tc := s.user(id.TenantID{}, models.RoleSuperAdmin)
		err := s.guard.Check(s.ctx, tc, models.PermDocumentsRead)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown role denied", func() {
		tc := s.user(s.tenantA, models.Role("OWNER"))
		err := s.guard.Check(s.ctx, tc, models.PermDocumentsRead)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GuardSuite) TestClientUserCrossTenantDeniedForEveryPermission() {
	tc := s.user(s.tenantA, models.RoleClientUser)
	for perm := range models.RoleSuperAdmin.Ceiling() {
		err := s.guard.Authorize(s.ctx, tc, perm, s.tenantB)
		s.Require().Error(err, "permission %s", perm)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "permission %s", perm)
	}
}

func (s *GuardSuite) TestSuperAdminStillScopedForResourceAccess() {
	tc := s.user(s.tenantA, models.RoleSuperAdmin)
	err := s.guard.Authorize(s.ctx, tc, models.PermDocumentsRead, s.tenantB)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.NoError(s.guard.Authorize(s.ctx, tc, models.PermDocumentsDelete, s.tenantA))
}

func (s *GuardSuite) TestClientUserCeiling() {
	tc := s.user(s.tenantA, models.RoleClientUser)
	s.NoError(s.guard.Authorize(s.ctx, tc, models.PermDocumentsUpdate, s.tenantA))

	err := s.guard.Authorize(s.ctx, tc, models.PermDocumentsDelete, s.tenantA)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Run("granted permission above ceiling is ignored", func() {
		tc := s.user(s.tenantA, models.RoleClientUser, models.PermDocumentsDelete, models.PermDocumentsRead)
		err := s.guard.Authorize(s.ctx, tc, models.PermDocumentsDelete, s.tenantA)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.NoError(s.guard.Authorize(s.ctx, tc, models.PermDocumentsRead, s.tenantA))
	})

	s.Run("explicit permission set narrows the ceiling", func() {
		tc := s.user(s.tenantA, models.RoleClientUser, models.PermDocumentsRead)
		err := s.guard.Authorize(s.ctx, tc, models.PermDocumentsUpdate, s.tenantA)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GuardSuite) TestAuthorizeScope() {
	s.Run("scoped listing returns own tenant", func() {
		tc := s.user(s.tenantA, models.RoleClientUser)
		scope, err := s.guard.AuthorizeScope(s.ctx, tc, models.PermDocumentsRead, false)
		s.Require().NoError(err)
		s.Require().NotNil(scope)
		s.Equal(s.tenantA, *scope)
	})

	s.Run("client user cannot list across tenants", func() {
		tc := s.user(s.tenantA, models.RoleClientUser)
		_, err := s.guard.AuthorizeScope(s.ctx, tc, models.PermDocumentsRead, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("super admin lists across tenants", func() {
		tc := s.user(s.tenantA, models.RoleSuperAdmin)
		scope, err := s.guard.AuthorizeScope(s.ctx, tc, models.PermDocumentsRead, true)
		s.Require().NoError(err)
		s.Nil(scope)
	})
}
