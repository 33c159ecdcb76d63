package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	cartdom "servio/internal/domain/cart"
)

var (
	ErrCartInvalidArgument = errors.New("cart_usecase: invalid argument")
)

// remoteSyncTimeout bounds a single fire-and-forget remote write.
const remoteSyncTimeout = 10 * time.Second

// SyncOp identifies the remote operation behind a SyncResult.
type SyncOp string

const (
	SyncUpsert SyncOp = "upsert"
	SyncDelete SyncOp = "delete"
)

// SyncResult reports the outcome of a fire-and-forget remote write. Callers
// may observe failures here without being forced to await them.
type SyncResult struct {
	Op      SyncOp
	OwnerID string
	Err     error
}

// CartUsecase is the cart state accessor plus its mutations. The local
// ephemeral tier is written synchronously and is always usable; the remote
// durable tier is brought in line asynchronously once the caller is
// authenticated.
type CartUsecase struct {
	store    LocalStore
	repo     cartdom.Repository
	notifier ChangeNotifier
	clock    Clock
	log      *zap.Logger

	locks    keyedMutex
	results  chan SyncResult
	wg       sync.WaitGroup
	localTTL time.Duration

	// Remote writes are sequenced per owner so a delayed older write can
	// never land after a newer one.
	syncLocks keyedMutex
	syncMu    sync.Mutex
	syncSeq   map[string]uint64
	syncDone  map[string]uint64
}

func NewCartUsecase(store LocalStore, repo cartdom.Repository, notifier ChangeNotifier, log *zap.Logger) *CartUsecase {
	return NewCartUsecaseWithClock(store, repo, notifier, log, nil)
}

// NewCartUsecaseWithClock is useful for tests.
func NewCartUsecaseWithClock(store LocalStore, repo cartdom.Repository, notifier ChangeNotifier, log *zap.Logger, clock Clock) *CartUsecase {
	if clock == nil {
		clock = systemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartUsecase{
		store:    store,
		repo:     repo,
		notifier: notifier,
		clock:    clock,
		log:      log,
		results:  make(chan SyncResult, 64),
		localTTL: cartdom.DefaultTTL,
		syncSeq:  make(map[string]uint64),
		syncDone: make(map[string]uint64),
	}
}

// Results exposes outcomes of fire-and-forget remote writes. Writes never
// block on it: when nobody drains the channel, results are dropped after the
// buffer fills (they are already logged).
func (uc *CartUsecase) Results() <-chan SyncResult { return uc.results }

// Close waits for in-flight remote writes to settle.
func (uc *CartUsecase) Close() {
	uc.wg.Wait()
}

// Read returns the device's current snapshot. Fails soft: a store error or a
// malformed payload yields an empty cart and a warning, never an error to
// the caller.
func (uc *CartUsecase) Read(ctx context.Context, deviceID string) []cartdom.Entry {
	key := DeviceKey(strings.TrimSpace(deviceID))

	payload, found, err := uc.store.Get(ctx, key)
	if err != nil {
		uc.log.Warn("local store read failed, treating cart as empty",
			zap.String("key", key), zap.Error(err))
		return []cartdom.Entry{}
	}
	if !found {
		return []cartdom.Entry{}
	}

	entries, ok := cartdom.DecodeEntries(payload)
	if !ok {
		uc.log.Warn("local snapshot malformed, treating cart as empty",
			zap.String("key", key))
	}
	return entries
}

// Write replaces the device's snapshot in a single store operation. Entries
// are validated at this boundary (qty >= 1, unique non-empty item ids);
// invalid input is rejected, never coerced. A store rejection surfaces as an
// error, but caller-visible in-memory state is not rolled back.
func (uc *CartUsecase) Write(ctx context.Context, deviceID, ownerID string, entries []cartdom.Entry) ([]cartdom.Entry, error) {
	did := strings.TrimSpace(deviceID)
	if did == "" {
		return nil, ErrCartInvalidArgument
	}
	if err := cartdom.ValidateEntries(entries); err != nil {
		return nil, err
	}

	unlock := uc.locks.lock(did)
	defer unlock()

	normalized := cartdom.Normalize(entries)
	if err := uc.writeLocal(ctx, did, normalized); err != nil {
		return nil, err
	}
	uc.syncRemote(ownerID, normalized)
	uc.notifier.Publish(ctx, DeviceKey(did))
	return normalized, nil
}

// AddItem increments the quantity for itemID. qty must be >= 1.
func (uc *CartUsecase) AddItem(ctx context.Context, deviceID, ownerID, itemID string, qty int) ([]cartdom.Entry, error) {
	did := strings.TrimSpace(deviceID)
	iid := strings.TrimSpace(itemID)
	if did == "" || iid == "" || qty < 1 {
		return nil, ErrCartInvalidArgument
	}

	unlock := uc.locks.lock(did)
	defer unlock()

	entries := uc.Read(ctx, did)
	found := false
	for i := range entries {
		if entries[i].ItemID == iid {
			entries[i].Qty += qty
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, cartdom.Entry{ItemID: iid, Qty: qty})
	}

	return uc.commit(ctx, did, ownerID, entries)
}

// SetQty sets the absolute quantity for itemID. qty <= 0 removes the item.
func (uc *CartUsecase) SetQty(ctx context.Context, deviceID, ownerID, itemID string, qty int) ([]cartdom.Entry, error) {
	did := strings.TrimSpace(deviceID)
	iid := strings.TrimSpace(itemID)
	if did == "" || iid == "" {
		return nil, ErrCartInvalidArgument
	}

	unlock := uc.locks.lock(did)
	defer unlock()

	entries := uc.Read(ctx, did)
	out := entries[:0]
	for _, e := range entries {
		if e.ItemID == iid {
			continue
		}
		out = append(out, e)
	}
	if qty > 0 {
		out = append(out, cartdom.Entry{ItemID: iid, Qty: qty})
	}

	return uc.commit(ctx, did, ownerID, out)
}

// RemoveItem removes itemID from the cart.
func (uc *CartUsecase) RemoveItem(ctx context.Context, deviceID, ownerID, itemID string) ([]cartdom.Entry, error) {
	return uc.SetQty(ctx, deviceID, ownerID, itemID, 0)
}

// Clear empties the cart: the local key is removed and, for an authenticated
// caller, the remote document is deleted.
func (uc *CartUsecase) Clear(ctx context.Context, deviceID, ownerID string) error {
	did := strings.TrimSpace(deviceID)
	if did == "" {
		return ErrCartInvalidArgument
	}

	unlock := uc.locks.lock(did)
	defer unlock()

	_, err := uc.commit(ctx, did, ownerID, nil)
	return err
}

// commit writes entries locally (local-first: this completes before any
// remote IO is issued), schedules the remote sync and broadcasts the change.
// Callers hold the device lock.
func (uc *CartUsecase) commit(ctx context.Context, did, ownerID string, entries []cartdom.Entry) ([]cartdom.Entry, error) {
	normalized := cartdom.Normalize(entries)
	if err := uc.writeLocal(ctx, did, normalized); err != nil {
		return nil, err
	}
	uc.syncRemote(ownerID, normalized)
	uc.notifier.Publish(ctx, DeviceKey(did))
	return normalized, nil
}

// writeLocal replaces the snapshot. An empty set removes the key so local
// and remote agree on "empty means absent".
func (uc *CartUsecase) writeLocal(ctx context.Context, did string, entries []cartdom.Entry) error {
	key := DeviceKey(did)
	if len(entries) == 0 {
		return uc.store.Remove(ctx, key)
	}
	payload, err := cartdom.EncodeEntries(entries)
	if err != nil {
		return err
	}
	return uc.store.Set(ctx, key, payload, uc.localTTL)
}

// syncRemote brings the remote tier in line with entries, fire-and-forget:
// callers never block on it, failures are logged and reported on Results().
// An empty set deletes the document, anything else upserts it. No retry; the
// next mutation re-attempts naturally.
//
// Writes for the same owner serialize on a per-owner lock and carry a
// sequence number taken under the caller's device lock. A write whose
// sequence is behind the last applied one is dropped: a slow upsert from an
// earlier mutation must not land after a later delete and recreate the
// document with stale items.
func (uc *CartUsecase) syncRemote(ownerID string, entries []cartdom.Entry) {
	oid := strings.TrimSpace(ownerID)
	if oid == "" || uc.repo == nil {
		return
	}

	now := uc.clock.Now()

	uc.syncMu.Lock()
	uc.syncSeq[oid]++
	seq := uc.syncSeq[oid]
	uc.syncMu.Unlock()

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()

		unlock := uc.syncLocks.lock(oid)
		defer unlock()

		uc.syncMu.Lock()
		stale := seq <= uc.syncDone[oid]
		if !stale {
			uc.syncDone[oid] = seq
		}
		uc.syncMu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), remoteSyncTimeout)
		defer cancel()

		var res SyncResult
		if len(entries) == 0 {
			res = SyncResult{Op: SyncDelete, OwnerID: oid, Err: uc.repo.DeleteByOwnerID(ctx, oid)}
		} else {
			doc := &cartdom.Document{
				OwnerID:   oid,
				Items:     entries,
				UpdatedAt: now,
				ExpiresAt: now.Add(cartdom.DefaultTTL),
			}
			res = SyncResult{Op: SyncUpsert, OwnerID: oid, Err: uc.repo.Upsert(ctx, doc)}
		}

		if res.Err != nil {
			uc.log.Error("remote cart sync failed",
				zap.String("op", string(res.Op)), zap.String("owner", oid), zap.Error(res.Err))
		}
		select {
		case uc.results <- res:
		default:
		}
	}()
}
