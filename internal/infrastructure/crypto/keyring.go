package crypto

import (
	"crypto/rsa"
	"sync/atomic"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

type parsedKey struct {
	kid       string
	alg       string
	retiredAt *time.Time
	signKey   interface{}
	verifyKey interface{}
}

// PublicKey is the verification half of an RS256 key.
type PublicKey struct {
	Kid string
	Alg string
	Key *rsa.PublicKey
}

// Keyring is an immutable, parsed snapshot of a KeySet.
type Keyring struct {
	keySet *models.KeySet
	keys   map[string]*parsedKey
}

// NewKeyring validates keySet and parses the material of every key once.
func NewKeyring(keySet *models.KeySet) (*Keyring, error) {
	if err := keySet.Validate(); err != nil {
		return nil, err
	}

	r := &Keyring{
		keySet: keySet.Clone(),
		keys:   make(map[string]*parsedKey, len(keySet.Keys)),
	}
	for kid, k := range r.keySet.Keys {
		pk, err := parseKey(k)
		if err != nil {
			return nil, errors.ErrInvalidArgument.WithMessage("invalid material for key %q", kid).WithCause(err)
		}
		r.keys[kid] = pk
	}
	return r, nil
}

func parseKey(k models.SigningKey) (*parsedKey, error) {
	pk := &parsedKey{kid: k.Kid, alg: k.Algorithm, retiredAt: k.RetiredAt}
	switch k.Algorithm {
	case constants.AlgRS256:
		priv, err := ParseRSAPrivateKeyPEM(k.Material)
		if err != nil {
			return nil, err
		}
		pk.signKey, pk.verifyKey = priv, &priv.PublicKey
	case constants.AlgHS256:
		if len(k.Material) < constants.MinHMACSecretBytes {
			return nil, errors.ErrInvalidArgument.WithMessage("HS256 secret must be at least %d bytes", constants.MinHMACSecretBytes)
		}
		secret := append([]byte(nil), k.Material...)
		pk.signKey, pk.verifyKey = secret, secret
	default:
		return nil, errors.ErrInvalidArgument.WithMessage("unsupported algorithm %q", k.Algorithm)
	}
	return pk, nil
}

// KeySet returns a copy of the snapshot's KeySet.
func (r *Keyring) KeySet() *models.KeySet {
	return r.keySet.Clone()
}

// Version returns the version of the snapshot's KeySet.
func (r *Keyring) Version() int64 {
	return r.keySet.Version
}

// ActiveKid returns the kid that signs new tokens.
func (r *Keyring) ActiveKid() string {
	return r.keySet.ActiveKid
}

func (r *Keyring) signingKey() (*parsedKey, error) {
	if r == nil {
		return nil, errors.ErrSigningKeyUnavailable
	}
	pk, ok := r.keys[r.keySet.ActiveKid]
	if !ok {
		return nil, errors.ErrSigningKeyUnavailable
	}
	return pk, nil
}

// verificationKey returns kid if it is the active key or retired within the
// grace period. The active key stays verifiable even when overdue, since it is
// still the one signing.
func (r *Keyring) verificationKey(kid string, now time.Time) (*parsedKey, bool) {
	if r == nil {
		return nil, false
	}
	pk, ok := r.keys[kid]
	if !ok {
		return nil, false
	}
	if kid != r.keySet.ActiveKid && !r.keySet.Keys[kid].UsableAt(now, r.keySet.Grace()) {
		return nil, false
	}
	return pk, true
}

// PublicKeys returns the RS256 keys usable for verification at now, ordered by kid.
// HS256 keys have no public form and are never returned.
func (r *Keyring) PublicKeys(now time.Time) []PublicKey {
	out := make([]PublicKey, 0, len(r.keys))
	for _, kid := range r.keySet.Kids() {
		pk, ok := r.verificationKey(kid, now)
		if !ok || pk.alg != constants.AlgRS256 {
			continue
		}
		out = append(out, PublicKey{Kid: kid, Alg: pk.alg, Key: pk.verifyKey.(*rsa.PublicKey)})
	}
	return out
}

// KeyringHolder publishes the current Keyring. Swaps are atomic, so readers see
// either the old or the new snapshot, never a mix.
type KeyringHolder struct {
	current atomic.Pointer[Keyring]
}

// NewKeyringHolder parses keySet and publishes it.
func NewKeyringHolder(keySet *models.KeySet) (*KeyringHolder, error) {
	h := &KeyringHolder{}
	if err := h.Swap(keySet); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the published Keyring.
func (h *KeyringHolder) Current() *Keyring {
	return h.current.Load()
}

// Swap parses keySet and replaces the published Keyring. On error the
// current snapshot is left untouched.
func (h *KeyringHolder) Swap(keySet *models.KeySet) error {
	r, err := NewKeyring(keySet)
	if err != nil {
		return err
	}
	h.current.Store(r)
	return nil
}
