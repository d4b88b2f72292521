package domain

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")

	// Callback state errors.
	ErrStateUnknown = errors.New("oauth state unknown")
	ErrStateExpired = errors.New("oauth state expired")
	ErrStateReplay  = errors.New("oauth state already consumed")

	// Discord-side errors.
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamProtocol    = errors.New("upstream protocol error")

	ErrStoreUnavailable = errors.New("user store unavailable")
	ErrUserNotFound     = errors.New("user not found")

	// Session token errors. All of them are reported as unauthenticated.
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSignature = errors.New("session token signature invalid")
	ErrTokenExpired     = errors.New("session token expired")
	ErrTokenMalformed   = errors.New("session token malformed")
	ErrTokenRevoked     = errors.New("session token revoked")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ErrorKind is the stable, machine-readable name of a failure reported to clients.
type ErrorKind string

const (
	KindStateUnknown        ErrorKind = "state_unknown"
	KindStateExpired        ErrorKind = "state_expired"
	KindStateReplay         ErrorKind = "state_replay"
	KindUpstreamRejected    ErrorKind = "upstream_rejected"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindUpstreamProtocol    ErrorKind = "upstream_protocol_error"
	KindStoreUnavailable    ErrorKind = "store_unavailable"
	KindInvalidSignature    ErrorKind = "invalid_signature"
	KindTokenExpired        ErrorKind = "token_expired"
	KindTokenMalformed      ErrorKind = "token_malformed"
	KindTokenRevoked        ErrorKind = "token_revoked"
	KindUnauthenticated     ErrorKind = "unauthenticated"
	KindUserNotFound        ErrorKind = "user_not_found"
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindValidation          ErrorKind = "validation_error"
	KindInternal            ErrorKind = "internal_error"
)

// Ordered: the specific token causes must win over ErrUnauthenticated,
// which wraps them.
var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrStateUnknown, KindStateUnknown},
	{ErrStateExpired, KindStateExpired},
	{ErrStateReplay, KindStateReplay},
	{ErrUpstreamRejected, KindUpstreamRejected},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
	{ErrUpstreamProtocol, KindUpstreamProtocol},
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenMalformed, KindTokenMalformed},
	{ErrTokenRevoked, KindTokenRevoked},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrUserNotFound, KindUserNotFound},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf returns the error kind for err, or KindInternal when err carries
// none of the known sentinels.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}
	return KindInternal
}
