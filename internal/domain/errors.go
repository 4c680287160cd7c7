package domain

import "errors"

// Failure classes surfaced by providers and the credit ledger. Callers
// classify with errors.Is; providers wrap these with the provider-specific
// detail message.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrContentPolicy       = errors.New("content policy rejection")
	ErrMalformedRequest    = errors.New("malformed generation request")
	ErrProviderOverloaded  = errors.New("provider overloaded")
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrDisallowedSubject   = errors.New("disallowed subject detected")
	ErrDownloadFailed      = errors.New("asset download failed")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
)

// OverloadClass reports whether the error should be treated as transient
// provider pressure: retried with backoff and, once exhausted, eligible for
// failover to the secondary provider.
func OverloadClass(err error) bool {
	return errors.Is(err, ErrProviderOverloaded) || errors.Is(err, ErrProviderTimeout)
}
