package common

// AccessTokenHeaderName is the gRPC metadata key carrying the access token
// in both directions.
const AccessTokenHeaderName = "access_token"

// HTTP response headers carrying the (possibly refreshed) token.
const (
	AuthTokenHeader          = "x-auth-token"
	AuthTokenExpiresAtHeader = "x-auth-token-expires-at"
	AuthTokenRefreshAtHeader = "x-auth-token-refresh-at"
)

// gRPC response metadata keys for token expiries.
const (
	ExpiresAtMetadataName = "access_token_expires_at"
	RefreshAtMetadataName = "access_token_refresh_at"
)
