package models

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryOptions control how failed API requests are replayed.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	return o
}

// retryTransport replays requests that fail with a transport error, a rate
// limit or a server error. Request bodies are buffered once so every attempt
// sends identical bytes. A Retry-After header on a 429 overrides the
// computed backoff.
type retryTransport struct {
	base http.RoundTripper
	opts RetryOptions
}

func newRetryTransport(base http.RoundTripper, opts RetryOptions) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, opts: opts.withDefaults()}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err = t.base.RoundTrip(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= t.opts.MaxAttempts {
			return resp, err
		}

		delay := t.backoff(attempt)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				if after, ok := retryAfter(resp); ok {
					delay = after
				}
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	delay := t.opts.BaseDelay * time.Duration(1<<(attempt-1))
	if t.opts.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(t.opts.Jitter)))
	}
	return delay
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// retryAfter parses the Retry-After header, which carries either a delay in
// seconds or an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
