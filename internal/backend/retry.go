package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"medibot/internal/metrics"
)

// transientStatus is a reply worth retrying: 5xx or 429.
type transientStatus struct {
	code       int
	detail     string
	retryAfter time.Duration
}

func (e *transientStatus) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.detail)
}

func isTransient(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// retryPolicy bounds extra attempts. Attempt n waits n*n units plus up to half
// that again in jitter, or the server's Retry-After when it is longer.
type retryPolicy struct {
	retries int
	unit    time.Duration
	logger  *slog.Logger
}

func (p retryPolicy) backoff(attempt int, hint time.Duration) time.Duration {
	base := time.Duration(attempt*attempt) * p.unit
	d := base + time.Duration(rand.Int64N(int64(base/2)+1))
	return max(d, hint)
}

// do sends the request built by newReq until it gets a non-transient reply,
// the attempts run out or ctx ends. The caller owns the returned body.
func (p retryPolicy) do(ctx context.Context, client *http.Client, newReq func() (*http.Request, error)) (*http.Response, error) {
	var last error
	var hint time.Duration
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			wait := p.backoff(attempt, hint)
			metrics.BackendRetries.Inc()
			p.logger.Warn("backend retry", "attempt", attempt+1, "wait", wait, "err", last)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w (last: %v)", ctx.Err(), last)
			case <-t.C:
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			last, hint = err, 0
			continue
		}
		if !isTransient(resp.StatusCode) {
			return resp, nil
		}
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		ts := &transientStatus{code: resp.StatusCode, detail: string(detail), retryAfter: retryAfter(resp.Header.Get("Retry-After"))}
		last, hint = ts, ts.retryAfter
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", p.retries+1, last)
}

// retryAfter parses the delta-seconds form of Retry-After; dates are ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, 30*time.Second)
}
