package models

import "time"

// JWK is the public form of a signing key as published to verifiers.
// JWK 是发布给验证方的签名密钥公开形式。
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the JSON Web Key Set document.
// JWKS 是 JSON Web 密钥集文档。
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Kids returns the kids published in the document, in document order.
func (j *JWKS) Kids() []string {
	kids := make([]string, 0, len(j.Keys))
	for _, k := range j.Keys {
		kids = append(kids, k.Kid)
	}
	return kids
}

// JWKSCacheEntry is a cached JWKS document with its expiry. It is always
// rebuildable from the KeySet and never the source of truth.
type JWKSCacheEntry struct {
	JWKS      *JWKS     `json:"jwks"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the entry can still be served at now.
func (e *JWKSCacheEntry) ValidAt(now time.Time) bool {
	return e != nil && e.JWKS != nil && now.Before(e.ExpiresAt)
}
