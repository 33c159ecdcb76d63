package identity

import (
	"context"
	"errors"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// FirebaseEmailLookup resolves user ids to contact addresses through
// Firebase Auth user records.
type FirebaseEmailLookup struct {
	client *firebaseauth.Client
}

func NewFirebaseEmailLookup(client *firebaseauth.Client) *FirebaseEmailLookup {
	return &FirebaseEmailLookup{client: client}
}

func (l *FirebaseEmailLookup) EmailByUserID(ctx context.Context, userID string) (string, error) {
	if l == nil || l.client == nil {
		return "", errors.New("identity: firebase auth client is nil")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return "", errors.New("identity: userID is empty")
	}

	record, err := l.client.GetUser(ctx, uid)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(record.Email), nil
}
