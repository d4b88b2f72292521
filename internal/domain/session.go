package domain

import "time"

// OAuthState is the single-use anti-CSRF value bound to one login attempt.
type OAuthState struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the state can no longer be accepted at now.
func (s OAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	Subject   int64     `json:"sub"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// FlowState is a step of the login state machine.
type FlowState string

const (
	FlowAnonymous       FlowState = "anonymous"
	FlowLoginInitiated  FlowState = "login_initiated"
	FlowCallbackPending FlowState = "callback_pending"
	FlowAuthenticated   FlowState = "authenticated"
	FlowFailed          FlowState = "failed"
)

// FlowError reports a login that moved to FlowFailed. Stage is the state the
// flow was in when the failure happened.
type FlowError struct {
	Stage FlowState
	Err   error
}

func (e *FlowError) Error() string {
	return "login failed in " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *FlowError) Unwrap() error {
	return e.Err
}
