package usecase

import (
	"context"
	"time"
)

// Clock provides current time (for testability).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// LocalStore is the device-scoped ephemeral tier. It is available before
// authentication, shared by all views of the same device, and holds opaque
// string payloads. Absence is reported via the bool, not an error.
type LocalStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error

	// SetNX stores value only if key is absent and reports whether it
	// stored. Backs the once-per-session reconcile guard.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// ChangeNotifier broadcasts "snapshot changed, re-read" signals keyed by the
// local store key. Cooperative broadcast, not mutual exclusion.
type ChangeNotifier interface {
	Publish(ctx context.Context, key string)
}

// Mailer sends a plain notification mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailLookup resolves an owner id to a contact address.
type EmailLookup interface {
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

// DeviceKey is the local store key holding a device's cart snapshot.
func DeviceKey(deviceID string) string { return "cart:device:" + deviceID }

// SessionKey is the local store key marking a login session as reconciled.
func SessionKey(sessionID string) string { return "reconciled:" + sessionID }
