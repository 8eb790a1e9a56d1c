package exchange

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// NewHTTPClient builds the shared retryable HTTP client every REST-backed
// provider uses: one retry after a 2s minimum wait, firing for
// connection-level failures and for 429 and 5xx responses (see
// shouldRetryStatus), matching the §5/§7
// "RateLimited -> one retry after 2s" policy as client configuration
// rather than a hand-rolled retry loop (grounded on the teacher's
// RateLimiter token-bucket idea in internal/execution/adapters/binance.go,
// replaced here with retryablehttp's backoff machinery).
func NewHTTPClient(logger *zap.Logger) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 2 * time.Second
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			// connection-level failures are the Network classification.
			return true, nil
		}
		if resp == nil {
			return false, nil
		}
		return shouldRetryStatus(resp.StatusCode), nil
	}
	// Hand the last response back once the retry is spent, so the
	// provider's do() classifies its status code (429 -> RateLimited).
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client.StandardClient()
}

// shouldRetryStatus reports whether an HTTP status code is retried by
// NewHTTPClient's CheckRetry: 429 (which do() classifies as RateLimited)
// and every 5xx (which do() classifies as Api).
func shouldRetryStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
