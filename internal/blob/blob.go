// Package blob stores uploaded document bytes under content-addressed keys.
package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	id "docflow/pkg/domain"
)

// Ref locates a stored object. It is opaque to callers.
type Ref string

func (r Ref) String() string { return string(r) }

// ErrNotFound is returned by Get for an unknown ref.
var ErrNotFound = errors.New("blob not found")

// Store is the blob storage collaborator. Put must be idempotent for
// identical keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (Ref, error)
	Get(ctx context.Context, ref Ref) ([]byte, error)
}

// ContentKey derives the storage key for data owned by tenantID.
func ContentKey(tenantID id.TenantID, data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("tenants/%s/%s", tenantID, hex.EncodeToString(sum[:]))
}

// ContentHash is the hex blake2b-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
