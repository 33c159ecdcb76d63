package cart

import (
	"context"
	"time"
)

// Document is the remote cart document, one per authenticated owner
// (Firestore docId = ownerId). A document exists only while the cart is
// non-empty; an empty cart is represented by document absence, never by an
// empty items field.
type Document struct {
	OwnerID   string
	Items     []Entry
	UpdatedAt time.Time

	// ExpiresAt drives the store-side TTL; refreshed on every upsert.
	ExpiresAt time.Time

	// RemindedAt is set once the expiry reminder has gone out, so the
	// sweep does not mail the same owner twice.
	RemindedAt time.Time
}

// Repository is the persistence port for the remote durable tier.
//
// Storage recommendation (Firestore):
// - collection: carts
// - docId: ownerId
// - fields: items, updatedAt, expiresAt, remindedAt
// - TTL policy configured on expiresAt
type Repository interface {
	// GetByOwnerID returns (nil, nil) when no document exists.
	GetByOwnerID(ctx context.Context, ownerID string) (*Document, error)

	// Upsert writes the cart fields with field-level merge semantics so
	// unrelated fields on the same document are preserved. Implementations
	// set updatedAt to write time.
	Upsert(ctx context.Context, doc *Document) error

	// DeleteByOwnerID removes the document entirely. Deleting an absent
	// document is not an error.
	DeleteByOwnerID(ctx context.Context, ownerID string) error

	// ExpiringBefore lists documents whose expiresAt falls before cutoff,
	// oldest first, capped at limit. Used by the reminder sweep.
	ExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Document, error)

	// MarkReminded records that the expiry reminder was sent at the given
	// time.
	MarkReminded(ctx context.Context, ownerID string, at time.Time) error
}
