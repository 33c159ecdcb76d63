package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	cartdom "servio/internal/domain/cart"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeRepo struct {
	mu   sync.Mutex
	docs map[string]*cartdom.Document

	getErr    error
	upsertErr error
	deleteErr error

	// optional gates to hold an upsert in flight, set before use
	upsertStarted chan struct{}
	upsertGate    chan struct{}

	gets    int
	upserts int
	deletes int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: make(map[string]*cartdom.Document)}
}

func (r *fakeRepo) GetByOwnerID(_ context.Context, ownerID string) (*cartdom.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.getErr != nil {
		return nil, r.getErr
	}
	doc, ok := r.docs[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeRepo) Upsert(_ context.Context, doc *cartdom.Document) error {
	if r.upsertStarted != nil {
		r.upsertStarted <- struct{}{}
	}
	if r.upsertGate != nil {
		<-r.upsertGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.upsertErr != nil {
		return r.upsertErr
	}
	cp := *doc
	r.docs[doc.OwnerID] = &cp
	return nil
}

func (r *fakeRepo) DeleteByOwnerID(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.docs, ownerID)
	return nil
}

func (r *fakeRepo) ExpiringBefore(_ context.Context, cutoff time.Time, limit int) ([]*cartdom.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*cartdom.Document
	for _, doc := range r.docs {
		if doc.ExpiresAt.Before(cutoff) {
			cp := *doc
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkReminded(_ context.Context, ownerID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.docs[ownerID]; ok {
		doc.RemindedAt = at
	}
	return nil
}

func (r *fakeRepo) doc(ownerID string) *cartdom.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[ownerID]
	if !ok {
		return nil
	}
	cp := *doc
	return &cp
}

func (r *fakeRepo) counts() (gets, upserts, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.upserts, r.deletes
}

type fakeNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (n *fakeNotifier) Publish(_ context.Context, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys = append(n.keys, key)
}

func (n *fakeNotifier) published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.keys...)
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []string // recipient addresses
	sendErr error
}

func (m *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, to)
	return nil
}

type fakeEmails struct {
	byUser map[string]string
}

func (e *fakeEmails) EmailByUserID(_ context.Context, userID string) (string, error) {
	return e.byUser[userID], nil
}

func waitResult(t *testing.T, uc *CartUsecase) SyncResult {
	t.Helper()
	select {
	case res := <-uc.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a sync result")
		return SyncResult{}
	}
}
