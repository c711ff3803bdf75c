package models

import (
	"regexp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/credcore/pkg/errors"
)

const (
	// MaxRoles is the maximum number of roles carried by an access token.
	MaxRoles = 32
	// MaxRoleLength is the maximum length of a single role name.
	MaxRoleLength = 64
	// MaxAttributes is the maximum number of attribute entries.
	MaxAttributes = 32
	// MaxAttributeValueBytes is the maximum size of an attribute value.
	MaxAttributeValueBytes = 256
)

var attributeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

// AccessTokenClaims are the claims carried by an access token.
// It embeds jwt.RegisteredClaims for sub, exp, iat and jti.
// AccessTokenClaims 是访问令牌携带的声明。
// 它嵌入了 jwt.RegisteredClaims 以提供 sub、exp、iat 和 jti。
type AccessTokenClaims struct {
	// Type is always "access" for tokens minted by the issuer.
	// Type 对于签发者生成的令牌始终为 "access"。
	Type string `json:"type"`
	// Roles is an ordered set of role names.
	// Roles 是有序且不重复的角色名称集合。
	Roles []string `json:"roles"`
	// Attributes is an open string-keyed map validated at issuance time.
	// Attributes 是在签发时校验的开放字符串键映射。
	Attributes map[string]string `json:"attributes,omitempty"`
	jwt.RegisteredClaims
}

// NormalizeRoles validates roles and removes duplicates while keeping the first occurrence order.
func NormalizeRoles(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role == "" || len(role) > MaxRoleLength {
			return nil, errors.ErrInvalidArgument.WithMessage("role name must be 1-%d characters", MaxRoleLength)
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	if len(out) > MaxRoles {
		return nil, errors.ErrInvalidArgument.WithMessage("at most %d roles are allowed", MaxRoles)
	}
	return out, nil
}

// ValidateAttributes checks attribute keys and values against the boundary rules.
func ValidateAttributes(attrs map[string]string) error {
	if len(attrs) > MaxAttributes {
		return errors.ErrInvalidArgument.WithMessage("at most %d attributes are allowed", MaxAttributes)
	}
	for k, v := range attrs {
		if !attributeKeyPattern.MatchString(k) {
			return errors.ErrInvalidArgument.WithMessage("invalid attribute key %q", k)
		}
		if len(v) > MaxAttributeValueBytes {
			return errors.ErrInvalidArgument.WithMessage("attribute %q exceeds %d bytes", k, MaxAttributeValueBytes)
		}
	}
	return nil
}
