package analytics

import (
	"context"
	"fmt"
	"time"

	xhttp "FinCast/pkg/http"
)

// HTTPServiceBase is the shared transport for model-serving HTTP clients.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds an HTTP client with timeout and base URL.
func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("User-Agent", "fincast")),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model service http client not initialized")
	}
	if err := b.client.PostJSON(ctx, b.baseURL+path, payload, dest); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures up to attempts times with linear backoff.
// Client errors (4xx) are returned immediately.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	var err error
	for i := 1; ; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || i >= attempts || !xhttp.IsTemporary(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
