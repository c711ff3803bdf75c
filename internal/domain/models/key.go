package models

import (
	"sort"
	"time"

	"github.com/turtacn/credcore/pkg/errors"
)

// KeyState is the lifecycle state of a signing key relative to a point in time.
// KeyState 是签名密钥相对于某个时间点的生命周期状态。
type KeyState string

const (
	// KeyStatePending keys exist but have never been active.
	KeyStatePending KeyState = "pending"
	// KeyStateActive is the key currently used to sign.
	KeyStateActive KeyState = "active"
	// KeyStateRetiring keys have a retirement time in the future.
	KeyStateRetiring KeyState = "retiring"
	// KeyStateRetired keys are past retirement but still verify within the grace period.
	KeyStateRetired KeyState = "retired"
	// KeyStateExpired keys are past retirement plus grace and are unusable.
	KeyStateExpired KeyState = "expired"
)

// SigningKey is a single key inside a KeySet.
// SigningKey 是 KeySet 中的单个密钥。
type SigningKey struct {
	// Kid is the key identifier published in token headers and the JWKS document.
	// Kid 是在令牌头和 JWKS 文档中发布的密钥标识符。
	Kid string `json:"kid"`
	// Algorithm is the JWS algorithm the key signs with (RS256 or HS256).
	// Algorithm 是密钥使用的 JWS 签名算法（RS256 或 HS256）。
	Algorithm string `json:"alg"`
	// Material holds the private key PEM (RS256) or the shared secret (HS256). Never logged.
	// Material 保存私钥 PEM（RS256）或共享密钥（HS256）。从不记录日志。
	Material []byte `json:"-"`
	// RetiredAt is the moment the key stops signing. Nil while the key has no planned retirement.
	// RetiredAt 是密钥停止签名的时间。未计划退役时为 nil。
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	// CreatedAt is when the key was added to the set.
	// CreatedAt 是密钥加入集合的时间。
	CreatedAt time.Time `json:"created_at"`
}

// IsRetiredAt reports whether the key's retirement time has been reached.
func (k SigningKey) IsRetiredAt(now time.Time) bool {
	return k.RetiredAt != nil && !now.Before(*k.RetiredAt)
}

// UsableAt reports whether tokens signed by the key may still be verified at now.
// A key without a retirement time is always usable; a retired key is usable
// strictly before RetiredAt+grace.
func (k SigningKey) UsableAt(now time.Time, grace time.Duration) bool {
	if k.RetiredAt == nil {
		return true
	}
	return now.Before(k.RetiredAt.Add(grace))
}

func (k SigningKey) clone() SigningKey {
	c := k
	if k.Material != nil {
		c.Material = append([]byte(nil), k.Material...)
	}
	if k.RetiredAt != nil {
		t := *k.RetiredAt
		c.RetiredAt = &t
	}
	return c
}

// KeySet is the full set of signing keys with the active and next pointers.
// A KeySet value is treated as immutable once published; changes are made on a Clone.
// KeySet 是包含活动密钥和下一个密钥指针的完整签名密钥集合。
// KeySet 一旦发布即视为不可变；修改必须在 Clone 上进行。
type KeySet struct {
	// Keys maps kid to key. Kids are unique by construction.
	// Keys 将 kid 映射到密钥。
	Keys map[string]SigningKey `json:"keys"`
	// ActiveKid must always resolve in Keys.
	// ActiveKid 必须始终能在 Keys 中找到。
	ActiveKid string `json:"active_kid"`
	// NextKid is the successor promoted when the active key retires. Empty when unset.
	// NextKid 是活动密钥退役时被提升的继任者。未设置时为空。
	NextKid string `json:"next_kid,omitempty"`
	// GracePeriodSeconds is how long a retired key keeps verifying.
	// GracePeriodSeconds 是退役密钥继续用于验证的时长。
	GracePeriodSeconds int64 `json:"grace_period_seconds"`
	// Version is incremented on every persisted change and used for optimistic writes.
	// Version 在每次持久化变更时递增，用于乐观并发写入。
	Version int64 `json:"version"`
}

// Grace returns the grace period as a duration.
func (s *KeySet) Grace() time.Duration {
	return time.Duration(s.GracePeriodSeconds) * time.Second
}

// Key returns the key with the given kid.
func (s *KeySet) Key(kid string) (SigningKey, bool) {
	if s == nil || kid == "" {
		return SigningKey{}, false
	}
	k, ok := s.Keys[kid]
	return k, ok
}

// Active returns the active key.
func (s *KeySet) Active() (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	return s.Key(s.ActiveKid)
}

// Kids returns every kid in the set in lexical order.
func (s *KeySet) Kids() []string {
	kids := make([]string, 0, len(s.Keys))
	for kid := range s.Keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// StateOf returns the lifecycle state of kid at now.
func (s *KeySet) StateOf(kid string, now time.Time) (KeyState, bool) {
	k, ok := s.Key(kid)
	if !ok {
		return "", false
	}
	switch {
	case k.RetiredAt == nil && kid == s.ActiveKid:
		return KeyStateActive, true
	case k.RetiredAt == nil:
		return KeyStatePending, true
	case now.Before(*k.RetiredAt):
		return KeyStateRetiring, true
	case k.UsableAt(now, s.Grace()):
		return KeyStateRetired, true
	default:
		return KeyStateExpired, true
	}
}

// Clone returns a deep copy that can be modified without affecting s.
func (s *KeySet) Clone() *KeySet {
	c := &KeySet{
		Keys:               make(map[string]SigningKey, len(s.Keys)),
		ActiveKid:          s.ActiveKid,
		NextKid:            s.NextKid,
		GracePeriodSeconds: s.GracePeriodSeconds,
		Version:            s.Version,
	}
	for kid, k := range s.Keys {
		c.Keys[kid] = k.clone()
	}
	return c
}

// Validate checks the structural invariants of the set.
func (s *KeySet) Validate() error {
	if s == nil || len(s.Keys) == 0 {
		return errors.ErrKeySetInconsistent.WithMessage("key set is empty")
	}
	if _, ok := s.Keys[s.ActiveKid]; !ok {
		return errors.ErrKeySetInconsistent.WithMetadata("active_kid", s.ActiveKid)
	}
	if s.NextKid != "" {
		if _, ok := s.Keys[s.NextKid]; !ok {
			return errors.ErrInvalidArgument.WithMessage("next kid %q is not in the key set", s.NextKid)
		}
	}
	if s.GracePeriodSeconds < 0 {
		return errors.ErrInvalidArgument.WithMessage("grace period must not be negative")
	}
	for kid, k := range s.Keys {
		if k.Kid != kid {
			return errors.ErrInvalidArgument.WithMessage("key %q is stored under kid %q", k.Kid, kid)
		}
	}
	return nil
}
