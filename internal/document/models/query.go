package models

import (
	"strings"
	"time"

	id "docflow/pkg/domain"
	dErrors "docflow/pkg/domain-errors"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	maxMetadataKeys   = 64
	maxMetadataKeyLen = 64
	maxMetadataValLen = 1024
	maxCategoryLen    = 128
)

// Filter selects documents for listing. TenantID nil means all tenants and is
// only ever set by the guard for callers allowed to read across tenants.
type Filter struct {
	TenantID   *id.TenantID
	Status     *Status
	Category   *string
	From       *time.Time
	To         *time.Time
	AllTenants bool
	Limit      int
	Offset     int
}

// Normalize applies paging defaults and validates ranges.
func (f *Filter) Normalize() error {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		return dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}
	if f.Status != nil && !f.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown status")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return dErrors.New(dErrors.CodeValidation, "date range end precedes start")
	}
	return nil
}

// Matches reports whether d satisfies every filter predicate. Deleted
// documents never match.
func (f Filter) Matches(d *Document) bool {
	if d.IsDeleted() {
		return false
	}
	if f.TenantID != nil && d.TenantID != *f.TenantID {
		return false
	}
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.Category != nil && d.Category != *f.Category {
		return false
	}
	if f.From != nil && d.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !d.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// Patch is a metadata edit. Set and Unset must not overlap.
type Patch struct {
	Category *string
	Set      map[string]string
	Unset    []string
}

func (p Patch) Validate() error {
	if p.Category == nil && len(p.Set) == 0 && len(p.Unset) == 0 {
		return dErrors.New(dErrors.CodeValidation, "patch is empty")
	}
	if p.Category != nil && len(*p.Category) > maxCategoryLen {
		return dErrors.New(dErrors.CodeValidation, "category too long")
	}
	if len(p.Set) > maxMetadataKeys {
		return dErrors.New(dErrors.CodeValidation, "too many metadata keys")
	}
	for k, v := range p.Set {
		if err := validateMetadataKey(k); err != nil {
			return err
		}
		if len(v) > maxMetadataValLen {
			return dErrors.Newf(dErrors.CodeValidation, "metadata value for %q too long", k)
		}
	}
	for _, k := range p.Unset {
		if err := validateMetadataKey(k); err != nil {
			return err
		}
		if _, ok := p.Set[k]; ok {
			return dErrors.Newf(dErrors.CodeValidation, "metadata key %q both set and unset", k)
		}
	}
	return nil
}

// ApplyTo mutates d with the patch. Call Validate first.
func (p Patch) ApplyTo(d *Document, now time.Time) {
	if p.Category != nil {
		d.Category = strings.TrimSpace(*p.Category)
	}
	if d.Metadata == nil && len(p.Set) > 0 {
		d.Metadata = make(map[string]string, len(p.Set))
	}
	for k, v := range p.Set {
		d.Metadata[k] = v
	}
	for _, k := range p.Unset {
		delete(d.Metadata, k)
	}
	d.UpdatedAt = now
}

// ValidateMetadata checks submitter-provided metadata against the same rules as patches.
func ValidateMetadata(m map[string]string) error {
	if len(m) == 0 {
		return nil
	}
	return Patch{Set: m}.Validate()
}

func validateMetadataKey(k string) error {
	if strings.TrimSpace(k) == "" {
		return dErrors.New(dErrors.CodeValidation, "metadata key must not be empty")
	}
	if len(k) > maxMetadataKeyLen {
		return dErrors.Newf(dErrors.CodeValidation, "metadata key %q too long", k)
	}
	return nil
}
