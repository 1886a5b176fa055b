package types

// Session is the authenticated payload returned to callers after signup,
// sign-in, or OAuth federation.
type Session struct {
	// ID is the authenticated user's identifier.
	ID int64 `json:"id"`

	// Username is the authenticated user's account identifier.
	Username string `json:"username"`

	// AccessToken is the signed bearer token for subsequent requests.
	AccessToken string `json:"access_token"`
}
