// Package registry records generated invoices: one entry per source
// invoice carrying its canonical id, issued face number, a content hash
// of the rendered output, and payment status. The engine never reads the
// registry to compute; it is an append-mostly record of what was issued.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks the life of an issued invoice.
type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "unpaid"
	StatusPaid     PaymentStatus = "paid"
	StatusVoid     PaymentStatus = "void"
	StatusWriteoff PaymentStatus = "written-off"
)

// IsValid checks the status tag is recognized.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusVoid, StatusWriteoff:
		return true
	}
	return false
}

// Entry is one recorded invoice.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	CanonicalID string          `json:"canonical_id"`
	FaceNumber  string          `json:"face_number"`
	SourceKey   string          `json:"source_key"`
	ContentHash string          `json:"content_hash"`
	Total       decimal.Decimal `json:"total"`
	Status      PaymentStatus   `json:"status"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// NewEntry builds an entry for a freshly generated invoice with a new id,
// an unpaid status, and the content hash of the rendered document.
func NewEntry(canonicalID, faceNumber, sourceKey string, total decimal.Decimal, content []byte, generatedAt time.Time) Entry {
	return Entry{
		ID:          uuid.New(),
		CanonicalID: canonicalID,
		FaceNumber:  faceNumber,
		SourceKey:   sourceKey,
		ContentHash: HashContent(content),
		Total:       total,
		Status:      StatusUnpaid,
		GeneratedAt: generatedAt.UTC(),
	}
}

// HashContent returns the hex SHA-256 of rendered invoice content, used
// to detect regeneration drift.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ErrNotFound reports a canonical id with no recorded entry.
type ErrNotFound struct {
	CanonicalID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: no entry for %s", e.CanonicalID)
}

// Store is the persistence contract. Put upserts by canonical id.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, canonicalID string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	SetStatus(ctx context.Context, canonicalID string, status PaymentStatus) error
	Close() error
}
