package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"servio/internal/adapters/out/localstore"
	cartdom "servio/internal/domain/cart"
)

func newReconcileUC(repo cartdom.Repository) (*ReconcileUsecase, *CartUsecase, *localstore.MemoryStore, *fakeNotifier) {
	store := localstore.NewMemoryStore()
	notifier := &fakeNotifier{}
	carts := NewCartUsecaseWithClock(store, repo, notifier, nil, fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)})
	rec := NewReconcileUsecase(carts, store, repo, notifier, nil)
	return rec, carts, store, notifier
}

func seedLocal(t *testing.T, store *localstore.MemoryStore, deviceID string, entries []cartdom.Entry) {
	t.Helper()
	payload, err := cartdom.EncodeEntries(entries)
	if err != nil {
		t.Fatalf("seed encode: %v", err)
	}
	if err := store.Set(context.Background(), DeviceKey(deviceID), payload, 0); err != nil {
		t.Fatalf("seed set: %v", err)
	}
}

func TestOnLoginLocalPrecedence(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.docs["user1"] = &cartdom.Document{
		OwnerID: "user1",
		Items:   []cartdom.Entry{{ItemID: "svc1", Qty: 5}, {ItemID: "svc2", Qty: 1}},
	}
	rec, carts, store, notifier := newReconcileUC(repo)
	seedLocal(t, store, "dev1", []cartdom.Entry{{ItemID: "svc1", Qty: 2}})

	merged, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("OnLogin() error = %v", err)
	}

	want := []cartdom.Entry{{ItemID: "svc1", Qty: 2}, {ItemID: "svc2", Qty: 1}}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("OnLogin() = %v, want %v", merged, want)
	}

	// merged snapshot is observable locally before the remote write settles
	if local := carts.Read(ctx, "dev1"); !reflect.DeepEqual(local, want) {
		t.Fatalf("local snapshot = %v, want %v", local, want)
	}

	if res := waitResult(t, carts); res.Op != SyncUpsert || res.Err != nil {
		t.Fatalf("sync result = %+v, want clean upsert", res)
	}
	doc := repo.doc("user1")
	if doc == nil || !reflect.DeepEqual(doc.Items, want) {
		t.Fatalf("remote document = %+v, want items %v", doc, want)
	}

	if keys := notifier.published(); len(keys) != 1 || keys[0] != DeviceKey("dev1") {
		t.Fatalf("published = %v, want one event for %q", keys, DeviceKey("dev1"))
	}
}

func TestOnLoginEmptyLocalAdoptsRemote(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.docs["user1"] = &cartdom.Document{
		OwnerID: "user1",
		Items:   []cartdom.Entry{{ItemID: "svc3", Qty: 1}},
	}
	rec, carts, _, _ := newReconcileUC(repo)

	merged, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("OnLogin() error = %v", err)
	}
	want := []cartdom.Entry{{ItemID: "svc3", Qty: 1}}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("OnLogin() = %v, want %v", merged, want)
	}
	if local := carts.Read(ctx, "dev1"); !reflect.DeepEqual(local, want) {
		t.Fatalf("local snapshot = %v, want %v", local, want)
	}
	waitResult(t, carts)
	if doc := repo.doc("user1"); doc == nil || !reflect.DeepEqual(doc.Items, want) {
		t.Fatalf("remote document changed: %+v, want items %v", doc, want)
	}
}

func TestOnLoginBothEmptyDeletesRemote(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rec, carts, store, _ := newReconcileUC(repo)

	merged, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("OnLogin() error = %v", err)
	}
	if len(merged) != 0 {
		t.Fatalf("OnLogin() = %v, want empty", merged)
	}
	if res := waitResult(t, carts); res.Op != SyncDelete || res.Err != nil {
		t.Fatalf("sync result = %+v, want clean delete", res)
	}
	if doc, _ := repo.GetByOwnerID(ctx, "user1"); doc != nil {
		t.Fatalf("remote document exists after empty merge: %+v", doc)
	}
	if _, found, _ := store.Get(ctx, DeviceKey("dev1")); found {
		t.Fatalf("local key present after empty merge")
	}
}

func TestOnLoginRunsOncePerSession(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.docs["user1"] = &cartdom.Document{
		OwnerID: "user1",
		Items:   []cartdom.Entry{{ItemID: "svc1", Qty: 3}},
	}
	rec, carts, _, _ := newReconcileUC(repo)

	first, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("first OnLogin() error = %v", err)
	}
	waitResult(t, carts)
	gets, upserts, _ := repo.counts()

	second, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("second OnLogin() error = %v", err)
	}
	if !reflect.DeepEqual(second, first) {
		t.Fatalf("duplicate OnLogin() = %v, want %v", second, first)
	}
	carts.Close()

	gets2, upserts2, _ := repo.counts()
	if gets2 != gets || upserts2 != upserts {
		t.Fatalf("duplicate OnLogin touched the remote tier (gets %d->%d, upserts %d->%d)",
			gets, gets2, upserts, upserts2)
	}
}

func TestOnLoginNewSessionReconcilesAgain(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	rec, carts, store, _ := newReconcileUC(repo)
	seedLocal(t, store, "dev1", []cartdom.Entry{{ItemID: "svc1", Qty: 1}})

	if _, err := rec.OnLogin(ctx, "user1", "dev1", "sess1"); err != nil {
		t.Fatalf("OnLogin() error = %v", err)
	}
	waitResult(t, carts)
	gets, _, _ := repo.counts()

	if _, err := rec.OnLogin(ctx, "user1", "dev1", "sess2"); err != nil {
		t.Fatalf("OnLogin() for new session error = %v", err)
	}
	waitResult(t, carts)

	gets2, _, _ := repo.counts()
	if gets2 != gets+1 {
		t.Fatalf("new session did not re-fetch the remote cart (gets %d->%d)", gets, gets2)
	}
}

func TestOnLoginRemoteFetchFailureMergesLocalOnly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.getErr = errors.New("firestore unavailable")
	rec, carts, store, _ := newReconcileUC(repo)
	seedLocal(t, store, "dev1", []cartdom.Entry{{ItemID: "svc1", Qty: 2}})

	merged, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("OnLogin() error = %v, want nil despite remote failure", err)
	}
	want := []cartdom.Entry{{ItemID: "svc1", Qty: 2}}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("OnLogin() = %v, want %v", merged, want)
	}
	if local := carts.Read(ctx, "dev1"); !reflect.DeepEqual(local, want) {
		t.Fatalf("local snapshot = %v, want %v", local, want)
	}
}

// flakyStore accepts guard markers but can reject snapshot writes, the way a
// store under quota pressure would.
type flakyStore struct {
	*localstore.MemoryStore
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.failSet {
		return errors.New("store write rejected")
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func TestOnLoginRetriesAfterFailedLocalWrite(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.docs["user1"] = &cartdom.Document{
		OwnerID: "user1",
		Items:   []cartdom.Entry{{ItemID: "svc9", Qty: 1}},
	}
	store := &flakyStore{MemoryStore: localstore.NewMemoryStore()}
	notifier := &fakeNotifier{}
	carts := NewCartUsecaseWithClock(store, repo, notifier, nil, fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)})
	rec := NewReconcileUsecase(carts, store, repo, notifier, nil)
	seedLocal(t, store.MemoryStore, "dev1", []cartdom.Entry{{ItemID: "svc1", Qty: 2}})

	store.failSet = true
	if _, err := rec.OnLogin(ctx, "user1", "dev1", "sess1"); err == nil {
		t.Fatalf("OnLogin() error = nil, want the local write failure surfaced")
	}

	// the store recovers and the login event is retried for the same session;
	// the remote items must still make it into the merge
	store.failSet = false
	merged, err := rec.OnLogin(ctx, "user1", "dev1", "sess1")
	if err != nil {
		t.Fatalf("retried OnLogin() error = %v", err)
	}
	want := []cartdom.Entry{{ItemID: "svc1", Qty: 2}, {ItemID: "svc9", Qty: 1}}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("retried OnLogin() = %v, want %v", merged, want)
	}
	if res := waitResult(t, carts); res.Op != SyncUpsert || res.Err != nil {
		t.Fatalf("sync result = %+v, want clean upsert", res)
	}
	carts.Close()
}

func TestOnLoginArgumentValidation(t *testing.T) {
	ctx := context.Background()
	rec, _, _, _ := newReconcileUC(newFakeRepo())

	for _, args := range [][3]string{
		{"", "dev1", "sess1"},
		{"user1", "", "sess1"},
		{"user1", "dev1", ""},
	} {
		if _, err := rec.OnLogin(ctx, args[0], args[1], args[2]); !errors.Is(err, ErrCartInvalidArgument) {
			t.Fatalf("OnLogin(%q, %q, %q) error = %v, want ErrCartInvalidArgument", args[0], args[1], args[2], err)
		}
	}
}
