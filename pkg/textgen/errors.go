package textgen

import "fmt"

// ErrorKind classifies provider failures for retry and reporting decisions.
type ErrorKind string

const (
	// KindAuth covers invalid or missing credentials (401, 403). Not retryable.
	KindAuth ErrorKind = "auth"
	// KindQuota covers rate limit and quota exhaustion (429). Retryable.
	KindQuota ErrorKind = "quota"
	// KindNetwork covers server errors and transport failures (5xx, timeouts).
	// Retryable.
	KindNetwork ErrorKind = "network"
	// KindMalformed covers empty or unparseable responses. Not retryable:
	// the same request would likely produce the same output.
	KindMalformed ErrorKind = "malformed"
)

// ProviderError is the error type returned by all Provider implementations.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying.
func (e *ProviderError) Transient() bool {
	return e.Kind == KindQuota || e.Kind == KindNetwork
}

// kindFromStatus maps an HTTP status code to an error kind.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindQuota
	case status >= 500:
		return KindNetwork
	default:
		return KindMalformed
	}
}
