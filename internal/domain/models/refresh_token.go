package models

import "time"

// RefreshToken is the stored record of an issued refresh token. Only the SHA-256
// hex digest of the raw value is kept.
// RefreshToken 是已签发刷新令牌的存储记录。仅保存原始值的 SHA-256 十六进制摘要。
type RefreshToken struct {
	// ID is the row identifier.
	// ID 是行标识符。
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	// JTIHash is the SHA-256 hex digest of the raw token. Unique.
	// JTIHash 是原始令牌的 SHA-256 十六进制摘要，唯一。
	JTIHash string `gorm:"column:jti_hash;uniqueIndex;size:64;not null" json:"jti_hash"`
	// UserID is the subject the token was issued to.
	// UserID 是令牌签发对象。
	UserID string `gorm:"index;not null" json:"user_id"`
	// ExpiresAt is the natural expiry of the token.
	// ExpiresAt 是令牌的自然过期时间。
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	// Revoked only ever transitions from false to true.
	// Revoked 只能从 false 变为 true。
	Revoked bool `gorm:"not null;default:false" json:"revoked"`
	// CreatedAt is when the token was issued.
	// CreatedAt 是令牌的签发时间。
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the gorm table name.
func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// IsExpiredAt reports whether the token is past its expiry at now.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
