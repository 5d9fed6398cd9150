package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docflow/internal/audit"
	auditstore "docflow/internal/audit/store"
	"docflow/internal/document/models"
	docstore "docflow/internal/document/store"
	"docflow/internal/tenant/guard"
	tenantmodels "docflow/internal/tenant/models"
	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/requestcontext"
)

// contendedStore bumps the stored version before the next Replace calls,
// as a pipeline write landing between read and write would.
type contendedStore struct {
	*docstore.InMemoryStore
	contend atomic.Int32
}

func (c *contendedStore) Replace(ctx context.Context, doc *models.Document, expectedVersion int64) error {
	if c.contend.Load() > 0 {
		c.contend.Add(-1)
		current, err := c.InMemoryStore.Get(ctx, doc.ID)
		if err != nil {
			return err
		}
		current.Status = models.StatusValidando
		if err := c.InMemoryStore.Replace(ctx, current, current.Version); err != nil {
			return err
		}
	}
	return c.InMemoryStore.Replace(ctx, doc, expectedVersion)
}

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	docs    *contendedStore
	audits  *auditstore.InMemoryStore
	service *Service
	tenant  id.TenantID
	other   id.TenantID
	user    *tenantmodels.TenantContext
	admin   *tenantmodels.TenantContext
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.docs = &contendedStore{InMemoryStore: docstore.NewInMemory()}
	s.audits = auditstore.NewInMemory()
	svc, err := New(s.docs, audit.New(s.audits), guard.New())
	s.Require().NoError(err)
	s.service = svc
	s.tenant = id.TenantID(uuid.New())
	s.other = id.TenantID(uuid.New())
	s.user = &tenantmodels.TenantContext{TenantID: s.tenant, UserID: id.UserID(uuid.New()), Role: tenantmodels.RoleClientUser}
	s.admin = &tenantmodels.TenantContext{TenantID: s.tenant, UserID: id.UserID(uuid.New()), Role: tenantmodels.RoleSuperAdmin}
}

func (s *ServiceSuite) seed(tenant id.TenantID, status models.Status, createdAt time.Time) *models.Document {
	doc := &models.Document{
		ID:        id.NewDocumentID(),
		TenantID:  tenant,
		OwnerID:   s.user.UserID,
		Filename:  "nota.pdf",
		MimeType:  "application/pdf",
		Status:    status,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	s.Require().NoError(s.docs.Create(s.ctx, doc))
	return doc
}

func (s *ServiceSuite) TestNewRequiresCollaborators() {
	_, err := New(nil, audit.New(s.audits), guard.New())
	s.Error(err)
	_, err = New(s.docs, nil, guard.New())
	s.Error(err)
	_, err = New(s.docs, audit.New(s.audits), nil)
	s.Error(err)
}

func (s *ServiceSuite) TestGet() {
	own := s.seed(s.tenant, models.StatusRecebido, s.now)
	foreign := s.seed(s.other, models.StatusRecebido, s.now)

	s.Run("own tenant", func() {
		doc, err := s.service.Get(s.ctx, s.user, own.ID)
		s.Require().NoError(err)
		s.Equal(own.ID, doc.ID)
	})
	s.Run("other tenant is forbidden", func() {
		_, err := s.service.Get(s.ctx, s.user, foreign.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("super admin is still scoped for single reads", func() {
		_, err := s.service.Get(s.ctx, s.admin, foreign.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("unknown id", func() {
		_, err := s.service.Get(s.ctx, s.user, id.NewDocumentID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("missing context fails closed", func() {
		_, err := s.service.Get(s.ctx, nil, own.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestList() {
	older := s.seed(s.tenant, models.StatusRecebido, s.now.Add(-time.Hour))
	newer := s.seed(s.tenant, models.StatusPagoAConciliar, s.now)
	s.seed(s.other, models.StatusRecebido, s.now)

	s.Run("scoped to caller tenant and ordered newest first", func() {
		docs, err := s.service.List(s.ctx, s.user, models.Filter{})
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal(newer.ID, docs[0].ID)
		s.Equal(older.ID, docs[1].ID)
	})

	s.Run("repeated listing is identical", func() {
		first, err := s.service.List(s.ctx, s.user, models.Filter{})
		s.Require().NoError(err)
		second, err := s.service.List(s.ctx, s.user, models.Filter{})
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("status filter", func() {
		status := models.StatusPagoAConciliar
		docs, err := s.service.List(s.ctx, s.user, models.Filter{Status: &status})
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal(newer.ID, docs[0].ID)
	})

	s.Run("caller cannot widen scope", func() {
		docs, err := s.service.List(s.ctx, s.user, models.Filter{TenantID: &s.other})
		s.Require().NoError(err)
		s.Len(docs, 2)
		for _, d := range docs {
			s.Equal(s.tenant, d.TenantID)
		}
	})

	s.Run("all tenants needs the capability", func() {
		_, err := s.service.List(s.ctx, s.user, models.Filter{AllTenants: true})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		docs, err := s.service.List(s.ctx, s.admin, models.Filter{AllTenants: true})
		s.Require().NoError(err)
		s.Len(docs, 3)
	})

	s.Run("invalid range", func() {
		from, to := s.now, s.now.Add(-time.Hour)
		_, err := s.service.List(s.ctx, s.user, models.Filter{From: &from, To: &to})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdateMetadata() {
	doc := s.seed(s.tenant, models.StatusRecebido, s.now)
	category := "utilidades"

	updated, err := s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{
		Category: &category,
		Set:      map[string]string{"cost_center": "ops"},
	})
	s.Require().NoError(err)
	s.Equal("utilidades", updated.Category)
	s.Equal("ops", updated.Metadata["cost_center"])
	s.Equal(int64(2), updated.Version)
	s.Equal(s.now, updated.UpdatedAt)

	updated, err = s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{Unset: []string{"cost_center"}})
	s.Require().NoError(err)
	s.NotContains(updated.Metadata, "cost_center")

	entries, err := s.audits.ListByDocument(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(TriggerUpdateMetadata, entries[0].Trigger)
	s.Equal(s.user.Actor(), entries[0].Actor)
	s.Equal(audit.OutcomeApplied, entries[0].Outcome)
}

func (s *ServiceSuite) TestUpdateMetadataRejectsBadPatches() {
	doc := s.seed(s.tenant, models.StatusRecebido, s.now)

	_, err := s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{
		Set:   map[string]string{"a": "1"},
		Unset: []string{"a"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	foreign := s.seed(s.other, models.StatusRecebido, s.now)
	_, err = s.service.UpdateMetadata(s.ctx, s.user, foreign.ID, models.Patch{Set: map[string]string{"a": "1"}})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestUpdateMetadataSurvivesPipelineWrite() {
	doc := s.seed(s.tenant, models.StatusRecebido, s.now)
	s.docs.contend.Store(1)

	updated, err := s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{Set: map[string]string{"k": "v"}})
	s.Require().NoError(err)
	s.Equal(models.StatusValidando, updated.Status)
	s.Equal("v", updated.Metadata["k"])
	s.Equal(int64(3), updated.Version)
}

func (s *ServiceSuite) TestUpdateMetadataGivesUpAfterBoundedRetries() {
	svc, err := New(s.docs, audit.New(s.audits), guard.New(), WithMaxConflictRetries(1))
	s.Require().NoError(err)
	doc := s.seed(s.tenant, models.StatusRecebido, s.now)
	s.docs.contend.Store(5)

	_, err = svc.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{Set: map[string]string{"k": "v"}})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(int32(3), s.docs.contend.Load())
}

func (s *ServiceSuite) TestDelete() {
	doc := s.seed(s.tenant, models.StatusPagoAConciliar, s.now)

	s.Run("client users cannot delete", func() {
		err := s.service.Delete(s.ctx, s.user, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin tombstones", func() {
		s.Require().NoError(s.service.Delete(s.ctx, s.admin, doc.ID))

		_, err := s.service.Get(s.ctx, s.admin, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		docs, err := s.service.List(s.ctx, s.admin, models.Filter{})
		s.Require().NoError(err)
		s.Empty(docs)

		entries, err := s.audits.ListByDocument(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(TriggerDelete, entries[0].Trigger)
	})

	s.Run("deleting twice is not found", func() {
		err := s.service.Delete(s.ctx, s.admin, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestListAudit() {
	doc := s.seed(s.tenant, models.StatusRecebido, s.now)
	_, err := s.service.UpdateMetadata(s.ctx, s.user, doc.ID, models.Patch{Set: map[string]string{"k": "v"}})
	s.Require().NoError(err)

	entries, err := s.service.ListAudit(s.ctx, s.user, doc.ID)
	s.Require().NoError(err)
	s.Len(entries, 1)

	outsider := &tenantmodels.TenantContext{TenantID: s.other, UserID: id.UserID(uuid.New()), Role: tenantmodels.RoleClientUser}
	_, err = s.service.ListAudit(s.ctx, outsider, doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestStatusCounts() {
	s.seed(s.tenant, models.StatusRecebido, s.now)
	s.seed(s.tenant, models.StatusRecebido, s.now)
	s.seed(s.other, models.StatusArquivado, s.now)

	counts, err := s.service.StatusCounts(s.ctx, s.user, false)
	s.Require().NoError(err)
	s.Equal(map[models.Status]int{models.StatusRecebido: 2}, counts)

	_, err = s.service.StatusCounts(s.ctx, s.user, true)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	counts, err = s.service.StatusCounts(s.ctx, s.admin, true)
	s.Require().NoError(err)
	s.Equal(2, counts[models.StatusRecebido])
	s.Equal(1, counts[models.StatusArquivado])
}
