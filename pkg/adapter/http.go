package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/crosscheck/pkg/model"
)

// HTTPGetter performs idempotent GETs with bounded exponential backoff.
// Only GET is offered; nothing else is ever retried.
type HTTPGetter struct {
	Client      *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	MaxBody     int64

	sleep func(ctx context.Context, d time.Duration) error
}

func (g *HTTPGetter) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get fetches url. A 429 response returns a rate_limited failure without
// retrying; transport errors and 5xx responses are retried. The returned error
// is always a *Failure.
func (g *HTTPGetter) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := g.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	limit := g.MaxBody
	if limit <= 0 {
		limit = DefaultOutputCap
	}
	sleep := g.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, delay<<(i-1)); err != nil {
				return nil, AsFailure(err)
			}
		}
		body, retry, err := g.once(ctx, url, header, limit)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, AsFailure(err)
		}
		lastErr = err
	}
	return nil, AsFailure(fmt.Errorf("GET %s: giving up after %d attempts: %w", url, attempts, lastErr))
}

func (g *HTTPGetter) once(ctx context.Context, url string, header http.Header, limit int64) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := g.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, &Failure{Reason: model.ReasonRateLimited, Err: fmt.Errorf("GET %s: %s", url, resp.Status)}
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("GET %s: %s", url, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, &Failure{Reason: model.ReasonNotAvailable, Err: fmt.Errorf("GET %s: %s", url, resp.Status)}
	case resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(body)) > limit {
		return nil, false, &Failure{Reason: model.ReasonBufferExceeded, Err: fmt.Errorf("GET %s: body exceeds %d bytes", url, limit)}
	}
	return body, false, nil
}
