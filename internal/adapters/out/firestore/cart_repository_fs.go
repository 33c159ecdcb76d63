package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	cartdom "servio/internal/domain/cart"
)

const cartsCollection = "carts"

// CartRepositoryFS implements cart.Repository on Firestore.
//
// Collection design:
// - collection: carts
// - docId: ownerId (the docId is the source of truth for ownership)
// - fields: items, updatedAt, expiresAt, remindedAt
// - Firestore TTL policy configured on "expiresAt"
type CartRepositoryFS struct {
	Client *firestore.Client
}

func NewCartRepositoryFS(client *firestore.Client) *CartRepositoryFS {
	return &CartRepositoryFS{Client: client}
}

func (r *CartRepositoryFS) col() *firestore.CollectionRef {
	return r.Client.Collection(cartsCollection)
}

// GetByOwnerID returns (nil, nil) if the document does not exist.
func (r *CartRepositoryFS) GetByOwnerID(ctx context.Context, ownerID string) (*cartdom.Document, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("cart_repository_fs: firestore client is nil")
	}
	oid := strings.TrimSpace(ownerID)
	if oid == "" {
		return nil, errors.New("cart_repository_fs: ownerID is empty")
	}

	snap, err := r.col().Doc(oid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	doc := docFromSnapshot(snap)
	doc.OwnerID = oid
	return doc, nil
}

// Upsert writes the cart fields with Set+MergeAll so unrelated fields on the
// same document are preserved. updatedAt is set to doc.UpdatedAt (write
// time as seen by the caller's clock).
func (r *CartRepositoryFS) Upsert(ctx context.Context, doc *cartdom.Document) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_fs: firestore client is nil")
	}
	if doc == nil {
		return errors.New("cart_repository_fs: document is nil")
	}
	oid := strings.TrimSpace(doc.OwnerID)
	if oid == "" {
		return errors.New("cart_repository_fs: Upsert requires doc.OwnerID as docId")
	}
	if len(doc.Items) == 0 {
		// An empty cart is represented by document absence.
		return errors.New("cart_repository_fs: refusing to upsert an empty cart, use DeleteByOwnerID")
	}

	items := make([]map[string]any, 0, len(doc.Items))
	for _, e := range doc.Items {
		items = append(items, map[string]any{
			"itemId": e.ItemID,
			"qty":    e.Qty,
		})
	}

	fields := map[string]any{
		"items":     items,
		"updatedAt": doc.UpdatedAt,
		"expiresAt": doc.ExpiresAt,
		// a refreshed cart is eligible for a new reminder
		"remindedAt": nil,
	}

	_, err := r.col().Doc(oid).Set(ctx, fields, firestore.MergeAll)
	return err
}

// DeleteByOwnerID removes the document. Firestore deletes are idempotent,
// so deleting an absent document succeeds.
func (r *CartRepositoryFS) DeleteByOwnerID(ctx context.Context, ownerID string) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_fs: firestore client is nil")
	}
	oid := strings.TrimSpace(ownerID)
	if oid == "" {
		return errors.New("cart_repository_fs: ownerID is empty")
	}

	_, err := r.col().Doc(oid).Delete(ctx)
	if err != nil && status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// ExpiringBefore lists carts whose expiresAt falls before cutoff, oldest
// first, capped at limit.
func (r *CartRepositoryFS) ExpiringBefore(ctx context.Context, cutoff time.Time, limit int) ([]*cartdom.Document, error) {
	if r == nil || r.Client == nil {
		return nil, errors.New("cart_repository_fs: firestore client is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	it := r.col().
		Where("expiresAt", "<", cutoff).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	var out []*cartdom.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		doc := docFromSnapshot(snap)
		doc.OwnerID = snap.Ref.ID
		out = append(out, doc)
	}
	return out, nil
}

func (r *CartRepositoryFS) MarkReminded(ctx context.Context, ownerID string, at time.Time) error {
	if r == nil || r.Client == nil {
		return errors.New("cart_repository_fs: firestore client is nil")
	}
	oid := strings.TrimSpace(ownerID)
	if oid == "" {
		return errors.New("cart_repository_fs: ownerID is empty")
	}

	_, err := r.col().Doc(oid).Update(ctx, []firestore.Update{
		{Path: "remindedAt", Value: at},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		// cart emptied between sweep and mark; nothing left to remind
		return nil
	}
	return err
}

// -----------------------------------------
// snapshot parsing
// -----------------------------------------

// docFromSnapshot parses document data defensively: items that do not match
// the expected shape are dropped rather than failing the read, since a junk
// entry must never make the cart unreadable.
func docFromSnapshot(snap *firestore.DocumentSnapshot) *cartdom.Document {
	out := &cartdom.Document{}
	raw := snap.Data()
	if raw == nil {
		return out
	}

	if t, ok := asTime(raw["updatedAt"]); ok {
		out.UpdatedAt = t
	}
	if t, ok := asTime(raw["expiresAt"]); ok {
		out.ExpiresAt = t
	}
	if t, ok := asTime(raw["remindedAt"]); ok {
		out.RemindedAt = t
	}

	itemsAny, ok := raw["items"].([]any)
	if !ok {
		return out
	}

	entries := make([]cartdom.Entry, 0, len(itemsAny))
	for _, v := range itemsAny {
		mv, ok := v.(map[string]any)
		if !ok {
			continue
		}
		entries = append(entries, cartdom.Entry{
			ItemID: asString(mv["itemId"]),
			Qty:    asInt(mv["qty"]),
		})
	}
	out.Items = cartdom.Normalize(entries)
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
