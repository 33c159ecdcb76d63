package secrets

import (
	"context"
	"errors"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ProviderSM reads secret values from GCP Secret Manager. Used for the
// SendGrid API key when the config names a secret instead of holding a
// literal key.
type ProviderSM struct {
	sm        *secretmanager.Client
	projectID string
}

func NewProviderSM(sm *secretmanager.Client, projectID string) *ProviderSM {
	return &ProviderSM{sm: sm, projectID: projectID}
}

// Access resolves a secret by id (latest version) or by full resource name.
func (p *ProviderSM) Access(ctx context.Context, secret string) (string, error) {
	if p == nil || p.sm == nil {
		return "", errors.New("secrets: secret manager client is nil")
	}

	name := strings.TrimSpace(secret)
	if name == "" {
		return "", errors.New("secrets: secret name is empty")
	}
	if !strings.HasPrefix(name, "projects/") {
		prj := strings.TrimSpace(p.projectID)
		if prj == "" {
			return "", errors.New("secrets: projectID is empty")
		}
		name = "projects/" + prj + "/secrets/" + name + "/versions/latest"
	} else if !strings.Contains(name, "/versions/") {
		name = name + "/versions/latest"
	}

	resp, err := p.sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", errors.New("secrets: AccessSecretVersion failed (" + name + "): " + err.Error())
	}
	if resp == nil || resp.Payload == nil {
		return "", errors.New("secrets: empty payload (" + name + ")")
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}
