package models

// Subject is the identity resolved at login together with the claims embedded into its tokens.
// Subject 是登录时解析出的身份及其令牌中携带的声明。
type Subject struct {
	// ID becomes the "sub" claim.
	ID string `json:"id"`
	// Roles become the "roles" claim after normalization.
	Roles []string `json:"roles"`
	// Attributes become the "attributes" claim after validation.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// TokenPair is the result of a successful login or refresh.
// TokenPair 是登录或刷新成功后返回的令牌对。
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}
