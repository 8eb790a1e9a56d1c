package exchange

import (
	"errors"
	"fmt"
	"time"
)

// ProviderErrorKind classifies a provider failure for retry/backoff policy.
type ProviderErrorKind string

const (
	KindAuthentication ProviderErrorKind = "authentication"
	KindNetwork        ProviderErrorKind = "network"
	KindParse          ProviderErrorKind = "parse"
	KindAPI            ProviderErrorKind = "api"
	KindUnsupported    ProviderErrorKind = "unsupported"
	KindRateLimited    ProviderErrorKind = "rate_limited"
)

// ProviderError is the uniform error shape every Provider method returns on
// failure. RetryAfter carries the broker's own hint when Kind is
// RateLimited and the response included one.
type ProviderError struct {
	Kind       ProviderErrorKind
	RetryAfter *time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exchange: %s", e.Kind)
	}
	return fmt.Sprintf("exchange: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrUnsupported is returned by ModifyOrder implementations that cannot
// amend a resting order in place, signaling the caller to fall back to
// cancel-and-replace.
var ErrUnsupported = &ProviderError{Kind: KindUnsupported, Err: errors.New("operation not supported by this provider")}

func newRateLimited(retryAfter time.Duration, err error) *ProviderError {
	return &ProviderError{Kind: KindRateLimited, RetryAfter: &retryAfter, Err: err}
}
