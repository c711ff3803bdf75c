package kms

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/patrickmn/go-cache"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const vaultCacheKey = "keyset"

// vaultKeyEntry is one element of the "keys" field of the Vault secret.
type vaultKeyEntry struct {
	Algorithm string     `json:"algorithm"`
	Material  string     `json:"material"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
}

// VaultKeySource reads a KeySet from a Vault KV v2 secret. The secret holds
// active_kid, next_kid, grace_period_seconds and a "keys" field containing a JSON
// object that maps each kid to its algorithm, material and optional retired_at.
// Results are kept briefly in memory and concurrent loads are coalesced.
type VaultKeySource struct {
	client *vault.Client
	mount  string
	path   string
	l1     *cache.Cache
	sf     singleflight.Group
	log    logger.Logger
}

// NewVaultKeySource creates a source reading mount/path. cacheTTL of zero disables caching.
func NewVaultKeySource(client *vault.Client, mount, path string, cacheTTL time.Duration, log logger.Logger) *VaultKeySource {
	s := &VaultKeySource{
		client: client,
		mount:  mount,
		path:   path,
		log:    log.WithComponent("vault_key_source"),
	}
	if cacheTTL > 0 {
		s.l1 = cache.New(cacheTTL, 2*cacheTTL)
	}
	return s
}

// Load returns the KeySet stored in Vault.
func (s *VaultKeySource) Load(ctx context.Context) (*models.KeySet, error) {
	if s.l1 != nil {
		if v, ok := s.l1.Get(vaultCacheKey); ok {
			return v.(*models.KeySet).Clone(), nil
		}
	}

	v, err, _ := s.sf.Do(vaultCacheKey, func() (interface{}, error) {
		secret, err := s.client.KVv2(s.mount).Get(ctx, s.path)
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, errors.ErrKeySetNotFound.WithCause(err)
		}
		if err != nil {
			s.log.Error(ctx, "failed to read key set from vault", err, logger.String("path", s.path))
			return nil, errors.Storage("vault.read", err)
		}
		ks, err := decodeVaultKeySet(secret.Data)
		if err != nil {
			return nil, err
		}
		if err := ks.Validate(); err != nil {
			return nil, err
		}
		if s.l1 != nil {
			s.l1.SetDefault(vaultCacheKey, ks)
		}
		s.log.Info(ctx, "key set loaded from vault",
			logger.String("active_kid", ks.ActiveKid), logger.Int("keys", len(ks.Keys)))
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.KeySet).Clone(), nil
}

func decodeVaultKeySet(data map[string]interface{}) (*models.KeySet, error) {
	if data == nil {
		return nil, errors.ErrKeySetNotFound.WithMessage("vault secret has no data")
	}

	ks := &models.KeySet{Keys: map[string]models.SigningKey{}}
	ks.ActiveKid, _ = data["active_kid"].(string)
	ks.NextKid, _ = data["next_kid"].(string)

	if raw, ok := data["grace_period_seconds"]; ok && raw != nil {
		grace, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
		if err != nil {
			return nil, errors.ErrInvalidArgument.WithMessage("invalid grace_period_seconds in vault secret").WithCause(err)
		}
		ks.GracePeriodSeconds = grace
	}

	rawKeys, ok := data["keys"].(string)
	if !ok {
		return nil, errors.ErrInvalidArgument.WithMessage("invalid key data format in vault")
	}
	var entries map[string]vaultKeyEntry
	if err := json.Unmarshal([]byte(rawKeys), &entries); err != nil {
		return nil, errors.ErrInvalidArgument.WithMessage("invalid key data format in vault").WithCause(err)
	}
	for kid, e := range entries {
		ks.Keys[kid] = models.SigningKey{
			Kid:       kid,
			Algorithm: e.Algorithm,
			Material:  []byte(e.Material),
			RetiredAt: e.RetiredAt,
		}
	}
	return ks, nil
}
