package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/suPer8Hu/agent-portal/internal/vault"
)

var (
	ErrUnknownTenant   = errors.New("unknown slack workspace")
	ErrNoSigningSecret = errors.New("slack signing secret not configured")
)

// TenantResolver maps a Slack team to the user whose credentials serve it.
type TenantResolver interface {
	Resolve(ctx context.Context, teamID string) (uint64, error)
}

// StaticTenants is an operator-maintained team id to user id table.
type StaticTenants map[string]uint64

func (t StaticTenants) Resolve(_ context.Context, teamID string) (uint64, error) {
	uid, ok := t[teamID]
	if !ok || uid == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTenant, teamID)
	}
	return uid, nil
}

type CredentialSource interface {
	Get(ctx context.Context, userID uint64, service vault.ServiceType) (vault.Payload, error)
}

// SigningSecrets reads a tenant's signing secret from its stored Slack
// credential.
type SigningSecrets struct {
	Creds CredentialSource
}

func (s SigningSecrets) SigningSecret(ctx context.Context, userID uint64) (string, error) {
	p, err := s.Creds.Get(ctx, userID, vault.ServiceSlack)
	if errors.Is(err, vault.ErrNotFound) {
		return "", ErrNoSigningSecret
	}
	if err != nil {
		return "", err
	}
	sc, ok := p.(vault.SlackCredential)
	if !ok || sc.SigningSecret == "" {
		return "", ErrNoSigningSecret
	}
	return sc.SigningSecret, nil
}
