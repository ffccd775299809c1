package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/hashicorp/vault/api"
)

// VaultStore keeps token records as KV v2 secrets under
// <prefix>/<subject>/<jti>. Vault handles encryption at rest and audit of
// every secret access.
type VaultStore struct {
	client *api.Client
	kv     *api.KVv2
	mount  string
	prefix string
}

// NewVaultStore connects to Vault and verifies the server is reachable and
// unsealed before returning. A failed health check fails the constructor so
// a misconfigured deployment dies at startup instead of on first request.
func NewVaultStore(ctx context.Context, addr, vaultToken, mount, prefix string) (*VaultStore, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(vaultToken)

	health, err := client.Sys().HealthWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: vault health check: %v", common.ErrStoreUnavailable, err)
	}
	if health.Sealed {
		return nil, fmt.Errorf("%w: vault is sealed", common.ErrStoreUnavailable)
	}

	return &VaultStore{
		client: client,
		kv:     client.KVv2(mount),
		mount:  mount,
		prefix: prefix,
	}, nil
}

func (s *VaultStore) path(subject, tokenID string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, subject, tokenID)
}

func recordToSecret(rec Record) (map[string]any, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func secretToRecord(data map[string]any) (Record, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *VaultStore) Put(ctx context.Context, rec Record) error {
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	data, err := recordToSecret(rec)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.path(rec.Subject, rec.TokenID), data); err != nil {
		return fmt.Errorf("%w: vault put: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *VaultStore) Get(ctx context.Context, subject, tokenID string) (Record, error) {
	secret, err := s.kv.Get(ctx, s.path(subject, tokenID))
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return Record{}, common.ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: vault get: %v", common.ErrStoreUnavailable, err)
	}
	return secretToRecord(secret.Data)
}

func (s *VaultStore) MarkRevoked(ctx context.Context, subject, tokenID string) error {
	rec, err := s.Get(ctx, subject, tokenID)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return nil
	}
	now := time.Now()
	rec.Revoked = true
	rec.RevokedAt = &now
	return s.Put(ctx, rec)
}

func (s *VaultStore) ListByUser(ctx context.Context, subject string) ([]string, error) {
	listPath := fmt.Sprintf("%s/metadata/%s/%s", s.mount, s.prefix, subject)
	secret, err := s.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("%w: vault list: %v", common.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(raw))
	for _, k := range raw {
		if id, ok := k.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *VaultStore) Close() error { return nil }
