// Package webex is the destination REST client. Every call goes through one
// request discipline: a 429 sleeps for the server-provided duration and retries
// without a ceiling, a 401 is fatal, and any other failure is reported for the
// single operation that hit it.
package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lherron/chatmig/internal/domain"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://webexapis.com/v1"

	defaultTimeout    = 60 * time.Second
	defaultRetryAfter = time.Second
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	TrackingID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.TrackingID != "" {
		msg += " (trackingId=" + e.TrackingID + ")"
	}
	return msg
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder receives request and throttle observations. It may be nil.
type Recorder interface {
	ObserveRequest(op string, status int)
	ObserveThrottle(op string, wait time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	DefaultRetryAfter time.Duration
	HTTPClient        *http.Client
	Sleep             Sleeper
	Recorder          Recorder
	Logger            zerolog.Logger
}

// Client is a destination API client.
type Client struct {
	baseURL    string
	auth       string
	retryAfter time.Duration
	http       *http.Client
	sleep      Sleeper
	rec        Recorder
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = defaultRetryAfter
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}

	auth := strings.TrimSpace(opts.Token)
	if auth != "" && !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		auth = "Bearer " + auth
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		auth:       auth,
		retryAfter: opts.DefaultRetryAfter,
		http:       opts.HTTPClient,
		sleep:      opts.Sleep,
		rec:        opts.Recorder,
		log:        opts.Logger,
		now:        time.Now,
	}
}

// request describes one logical API call. body is invoked per attempt so a
// retried request always sends a fresh reader.
type request struct {
	op     string
	method string
	path   string
	body   func() (io.Reader, string, error)
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do executes req, sleeping and retrying on 429 for as long as the server asks.
// The returned error is a *domain.Error: Unauthorized for 401, OperationFailed
// otherwise, wrapping an *APIError when the server answered.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.Wrap(domain.KindOperationFailed, req.op, err)
		}
		if c.rec != nil {
			c.rec.ObserveRequest(req.op, resp.status)
		}

		if resp.status == http.StatusTooManyRequests {
			wait := c.waitDuration(resp)
			c.log.Warn().
				Str("op", req.op).
				Str("kind", string(domain.KindThrottled)).
				Int("attempt", attempt).
				Dur("retry_after", wait).
				Msg("rate limited, backing off")
			if c.rec != nil {
				c.rec.ObserveThrottle(req.op, wait)
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.status >= 200 && resp.status < 300 {
			c.log.Debug().Str("op", req.op).Int("status", resp.status).Msg("api call ok")
			return resp, nil
		}

		apiErr := newAPIError(req, resp)
		if resp.status == http.StatusUnauthorized {
			return nil, domain.Wrap(domain.KindUnauthorized, req.op, apiErr)
		}
		return nil, domain.Wrap(domain.KindOperationFailed, req.op, apiErr)
	}
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	var contentType string
	if req.body != nil {
		var err error
		body, contentType, err = req.body()
		if err != nil {
			return nil, fmt.Errorf("build request body: %w", err)
		}
	}

	target := req.path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		if c, ok := body.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	if c.auth != "" {
		httpReq.Header.Set("Authorization", c.auth)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// waitDuration reads the server's wait hint: the Retry-After header as
// delta-seconds or an HTTP date, then a Retry-After field in the JSON body,
// then the configured default.
func (c *Client) waitDuration(resp *response) time.Duration {
	if v := strings.TrimSpace(resp.header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(c.now()); d > 0 {
				return d.Round(time.Second)
			}
			return 0
		}
	}

	var body struct {
		RetryAfter json.Number `json:"Retry-After"`
	}
	if err := json.Unmarshal(resp.body, &body); err == nil && body.RetryAfter != "" {
		if secs, err := body.RetryAfter.Float64(); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return c.retryAfter
}

func newAPIError(req request, resp *response) *APIError {
	apiErr := &APIError{
		Method:     req.method,
		Path:       req.path,
		StatusCode: resp.status,
		TrackingID: resp.header.Get("Trackingid"),
	}
	var body struct {
		Message    string `json:"message"`
		TrackingID string `json:"trackingId"`
	}
	if err := json.Unmarshal(resp.body, &body); err == nil {
		apiErr.Message = body.Message
		if body.TrackingID != "" {
			apiErr.TrackingID = body.TrackingID
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.status)
	}
	return apiErr
}

func decode(resp *response, op string, v any) error {
	if err := json.Unmarshal(resp.body, v); err != nil {
		return domain.Wrap(domain.KindOperationFailed, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
