package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	cartdom "servio/internal/domain/cart"
)

// reconcileGuardTTL is how long the per-session "already reconciled" marker
// lives. It only needs to outlast the session's ability to replay the login
// event.
const reconcileGuardTTL = 24 * time.Hour

// ReconcileUsecase merges the device's anonymous snapshot with the owner's
// remote cart, exactly once per login transition. Local precedence: edits
// made while signed out are the user's most recent intent and win over a
// possibly stale remote copy.
type ReconcileUsecase struct {
	carts    *CartUsecase
	store    LocalStore
	repo     cartdom.Repository
	notifier ChangeNotifier
	log      *zap.Logger
	guardTTL time.Duration
}

func NewReconcileUsecase(carts *CartUsecase, store LocalStore, repo cartdom.Repository, notifier ChangeNotifier, log *zap.Logger) *ReconcileUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconcileUsecase{
		carts:    carts,
		store:    store,
		repo:     repo,
		notifier: notifier,
		log:      log,
		guardTTL: reconcileGuardTTL,
	}
}

// OnLogin runs the one-time merge for a login transition and returns the
// merged snapshot. A duplicate invocation for the same session is a no-op
// that returns the current snapshot without side effects.
//
// The merge itself is idempotent, but the guard is still explicit: duplicate
// runs would re-issue remote writes, which is wasteful even when harmless.
func (uc *ReconcileUsecase) OnLogin(ctx context.Context, userID, deviceID, sessionID string) ([]cartdom.Entry, error) {
	oid := strings.TrimSpace(userID)
	did := strings.TrimSpace(deviceID)
	sid := strings.TrimSpace(sessionID)
	if oid == "" || did == "" || sid == "" {
		return nil, ErrCartInvalidArgument
	}

	first, err := uc.store.SetNX(ctx, SessionKey(sid), "1", uc.guardTTL)
	if err != nil {
		// The guard store being down must not make login unusable; run the
		// merge anyway, it is safe to repeat.
		uc.log.Warn("reconcile guard unavailable, proceeding",
			zap.String("session", sid), zap.Error(err))
		first = true
	}
	if !first {
		uc.log.Debug("login transition already reconciled",
			zap.String("session", sid), zap.String("owner", oid))
		return uc.carts.Read(ctx, did), nil
	}

	// Same serialization as ordinary mutations: a rapid add-to-cart racing
	// the login settle must not be silently overwritten.
	unlock := uc.carts.locks.lock(did)
	defer unlock()

	local := uc.carts.Read(ctx, did)

	var remote []cartdom.Entry
	doc, err := uc.repo.GetByOwnerID(ctx, oid)
	if err != nil {
		// Best effort: the local session stays usable, the remote tier
		// catches up on the next successful write.
		uc.log.Error("remote cart fetch failed, merging local side only",
			zap.String("owner", oid), zap.Error(err))
	} else if doc != nil {
		remote = doc.Items
	}

	merged := cartdom.Merge(remote, local)

	// Local first: the UI observes the merge before any network write is
	// even issued.
	if err := uc.carts.writeLocal(ctx, did, merged); err != nil {
		// Release the guard so a retried login event can still merge this
		// session; leaving it set would lose the remote items for good.
		if rerr := uc.store.Remove(ctx, SessionKey(sid)); rerr != nil {
			uc.log.Warn("could not release reconcile guard after failed merge",
				zap.String("session", sid), zap.Error(rerr))
		}
		return nil, err
	}

	uc.carts.syncRemote(oid, merged)
	uc.notifier.Publish(ctx, DeviceKey(did))

	uc.log.Info("cart reconciled",
		zap.String("owner", oid), zap.String("device", did),
		zap.Int("local", len(local)), zap.Int("remote", len(remote)), zap.Int("merged", len(merged)))
	return merged, nil
}
