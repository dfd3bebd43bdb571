package common

// AuthorizationHeaderName carries the bearer token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// PublicUserID is the caller id used when authentication is disabled.
const PublicUserID = "public"

// Report statuses.
const (
	StatusDraft = "draft"
	StatusSent  = "sent"
)
