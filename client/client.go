// Package client calls a running snowflaked service over HTTP.
//
// Failures reported by the service come back as *api.RemoteError and match
// the snowflake sentinels with errors.Is. Anything that goes wrong on the
// way (connection, HTTP status without an error envelope, undecodable
// body) is a *TransportError and never matches a generator kind.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sxyafiq/snowflaked/api"
	"github.com/sxyafiq/snowflaked/snowflake"
)

// DefaultTimeout bounds a single call when the caller's context has no
// deadline.
const DefaultTimeout = 5 * time.Second

// Client talks to one snowflaked instance.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New returns a client for the service at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base URL %q must be http or https", baseURL)
	}

	c := &Client{base: u, http: http.DefaultClient, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TransportError is a failure to obtain a well-formed response.
type TransportError struct {
	Op  string
	URL string
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("client: %s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Snowflake requests one ID.
func (c *Client) Snowflake(ctx context.Context) (snowflake.ID, error) {
	u := c.endpoint("v1", "snowflake")
	resp, err := c.get(ctx, "snowflake", u)
	if err != nil {
		return 0, err
	}
	if resp.Error == nil && resp.Snowflake == nil {
		return 0, &TransportError{Op: "snowflake", URL: u, Err: api.ErrEmptyResponse}
	}
	return resp.Result()
}

// Decode asks the service to decode id, given in the named format (empty
// for decimal), with the service's layout and epoch.
func (c *Client) Decode(ctx context.Context, id string, format snowflake.Format) (*api.Components, error) {
	u := c.endpoint("v1", "snowflake", id)
	if format != "" {
		u += "?format=" + url.QueryEscape(string(format))
	}
	resp, err := c.get(ctx, "decode", u)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.Err()
	}
	if resp.Components == nil {
		return nil, &TransportError{Op: "decode", URL: u, Err: api.ErrEmptyResponse}
	}
	return resp.Components, nil
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

func (c *Client) get(ctx context.Context, op, u string) (*api.Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: u, Err: err}
	}
	defer res.Body.Close()

	var body api.Response
	if err := api.Decode(res.Body, &body); err != nil {
		return nil, &TransportError{Op: op, URL: u, StatusCode: res.StatusCode, Err: fmt.Errorf("decoding body: %w", err)}
	}

	// The service always answers failures with an error envelope; a
	// non-2xx status without one did not come from it.
	if res.StatusCode/100 != 2 && body.Error == nil {
		return nil, &TransportError{Op: op, URL: u, StatusCode: res.StatusCode, Err: fmt.Errorf("unexpected status %s", res.Status)}
	}
	return &body, nil
}
