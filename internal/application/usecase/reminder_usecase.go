package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	cartdom "servio/internal/domain/cart"
)

const (
	defaultReminderWindow = 24 * time.Hour
	defaultSweepLimit     = 50
	reminderSubject       = "Your cart is about to expire"
)

// ReminderUsecase nudges owners whose remote carts are close to their TTL
// expiry. Sweeps are idempotent: a reminded cart is marked and skipped until
// a new mutation refreshes it.
type ReminderUsecase struct {
	repo   cartdom.Repository
	mail   Mailer
	emails EmailLookup
	clock  Clock
	log    *zap.Logger
	window time.Duration
	limit  int
}

func NewReminderUsecase(repo cartdom.Repository, mail Mailer, emails EmailLookup, log *zap.Logger) *ReminderUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReminderUsecase{
		repo:   repo,
		mail:   mail,
		emails: emails,
		clock:  systemClock{},
		log:    log,
		window: defaultReminderWindow,
		limit:  defaultSweepLimit,
	}
}

// SweepOnce reminds owners of carts expiring within the window and reports
// how many mails went out. Per-cart failures are logged and skipped; only a
// failing sweep query is an error.
func (uc *ReminderUsecase) SweepOnce(ctx context.Context) (int, error) {
	now := uc.clock.Now()

	docs, err := uc.repo.ExpiringBefore(ctx, now.Add(uc.window), uc.limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, doc := range docs {
		if !doc.RemindedAt.IsZero() {
			continue
		}

		addr, err := uc.emails.EmailByUserID(ctx, doc.OwnerID)
		if err != nil || strings.TrimSpace(addr) == "" {
			uc.log.Warn("no contact address for cart owner",
				zap.String("owner", doc.OwnerID), zap.Error(err))
			continue
		}

		if err := uc.mail.Send(ctx, addr, reminderSubject, reminderBody(doc)); err != nil {
			uc.log.Error("reminder mail failed",
				zap.String("owner", doc.OwnerID), zap.Error(err))
			continue
		}
		if err := uc.repo.MarkReminded(ctx, doc.OwnerID, now); err != nil {
			uc.log.Warn("could not mark cart as reminded",
				zap.String("owner", doc.OwnerID), zap.Error(err))
		}
		sent++
	}
	return sent, nil
}

// Run drives periodic sweeps until ctx is cancelled.
func (uc *ReminderUsecase) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := uc.SweepOnce(ctx); err != nil {
				uc.log.Error("reminder sweep failed", zap.Error(err))
			} else if n > 0 {
				uc.log.Info("reminder sweep done", zap.Int("sent", n))
			}
		}
	}
}

func reminderBody(doc *cartdom.Document) string {
	items := 0
	for _, e := range doc.Items {
		items += e.Qty
	}
	return fmt.Sprintf(
		"You still have %d item(s) waiting in your Servio cart.\n"+
			"They will be released on %s. Finish booking before then.\n",
		items, doc.ExpiresAt.Format("Jan 2, 2006"),
	)
}
