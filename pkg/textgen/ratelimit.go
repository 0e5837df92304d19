package textgen

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// limitedProvider wraps a Provider with a shared rate limiter and a per-call
// timeout. All pipeline stages share one limiter so concurrent workers cannot
// exceed the provider's request budget.
type limitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited wraps p so calls are spaced to at most requestsPerMinute and
// each call is bounded by timeout. Zero values disable the respective limit.
func NewLimited(p Provider, requestsPerMinute int, timeout time.Duration) Provider {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	return &limitedProvider{inner: p, limiter: limiter, timeout: timeout}
}

func (l *limitedProvider) Name() string {
	return l.inner.Name()
}

func (l *limitedProvider) Generate(ctx context.Context, req Request) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.inner.Generate(ctx, req)
}

func (l *limitedProvider) TestConnection(ctx context.Context) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return l.inner.TestConnection(ctx)
}
