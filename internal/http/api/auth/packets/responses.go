package packets

// returned when a token is issued
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// returned for the session endpoint
type SessionResponse struct {
	UserID string `json:"user_id"`
}
