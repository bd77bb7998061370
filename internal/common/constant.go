package common

// Cookie names carrying the session tokens. Browser clients depend on them.
const (
	AccessTokenCookieName  = "accessToken"
	RefreshTokenCookieName = "refreshToken"
)

// AccountIDContextKey is the request-context key under which the
// authenticated account id is stored.
const AccountIDContextKey = "account_id"
