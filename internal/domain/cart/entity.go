package cart

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidEntry = errors.New("cart: invalid entry")
)

// DefaultTTL is the inactivity window after which a cart becomes eligible
// for auto deletion (Firestore TTL should be configured on expiresAt).
// Refreshed on every mutation.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is one line item. Qty is the absolute count, not an increment.
// A cart holds at most one Entry per ItemID.
type Entry struct {
	ItemID string `json:"itemId" firestore:"itemId"`
	Qty    int    `json:"qty" firestore:"qty"`
}

// ValidateEntries checks a caller-supplied entry set at the accessor
// boundary. Empty item ids, quantities below 1 and duplicate item ids are
// rejected, never coerced.
func ValidateEntries(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ItemID)
		if id == "" || e.Qty < 1 {
			return ErrInvalidEntry
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidEntry
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Normalize drops invalid entries, collapses duplicate item ids (quantities
// summed) and returns a slice sorted by item id. Used on payloads we do not
// control: local snapshots and remote documents.
func Normalize(entries []Entry) []Entry {
	m := make(map[string]int, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ItemID)
		if id == "" || e.Qty < 1 {
			continue
		}
		m[id] += e.Qty
	}
	return fromMap(m)
}

// Merge combines a remote and a local snapshot under local precedence:
// the result holds the union of item ids, and for any id present on both
// sides the local quantity wins. Merging a set with itself yields the same
// set, so re-running a merge is harmless.
func Merge(remote, local []Entry) []Entry {
	m := map[string]int{}
	for _, e := range Normalize(remote) {
		m[e.ItemID] = e.Qty
	}
	for _, e := range Normalize(local) {
		m[e.ItemID] = e.Qty
	}
	return fromMap(m)
}

func fromMap(m map[string]int) []Entry {
	out := make([]Entry, 0, len(m))
	for id, qty := range m {
		out = append(out, Entry{ItemID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
