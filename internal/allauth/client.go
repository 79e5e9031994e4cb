package allauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const defaultTimeout = 15 * time.Second

// Observer receives the outcome of every API call.
type Observer interface {
	ObserveCall(op string, status int, err error)
}

// Client talks to the allauth headless API on behalf of the portal.
type Client struct {
	origin     *url.URL
	kind       ClientKind
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	timeout    time.Duration
	resetPath  string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. A cookie jar is attached
// to a copy when the client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request traces.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a call observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClientKind selects the browser or app API root.
func WithClientKind(kind ClientKind) Option {
	return func(c *Client) {
		if kind != "" {
			c.kind = kind
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPasswordResetPath overrides the path used to read and submit password
// reset keys, e.g. "/auth/password/reset" for stock allauth deployments.
func WithPasswordResetPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.resetPath = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// New builds a Client for the backend at origin, e.g. http://localhost:8000.
func New(origin string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("allauth: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("allauth: base url %q must be absolute", origin)
	}
	c := &Client{
		origin:    u,
		kind:      ClientBrowser,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout:   defaultTimeout,
		resetPath: ResetPasswordPath,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("allauth: cookie jar: %w", err)
		}
		hc := *c.httpClient
		hc.Jar = jar
		c.httpClient = &hc
	}
	return c, nil
}

// URL returns the absolute URL of an API path.
func (c *Client) URL(path string) string {
	return c.endpoint(path).String()
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.origin
	u.Path = strings.TrimRight(c.origin.Path, "/") + apiRoot(c.kind) + path
	u.RawQuery = ""
	return &u
}

// CSRFToken returns the decoded csrftoken cookie as currently held in the jar.
func (c *Client) CSRFToken() (string, bool) {
	for _, ck := range c.httpClient.Jar.Cookies(c.endpoint("")) {
		if ck.Name != CSRFCookieName || ck.Value == "" {
			continue
		}
		if v, err := url.QueryUnescape(ck.Value); err == nil {
			return v, true
		}
		return ck.Value, true
	}
	return "", false
}

// Response is a decoded envelope {status, data, meta}.
type Response struct {
	Status int
	Data   json.RawMessage
	Meta   json.RawMessage
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Meta   json.RawMessage `json:"meta"`
}

type call struct {
	op     string
	method string
	path   string
	body   any
	header http.Header
	// accept lists non-2xx statuses decoded as a response instead of an error.
	accept []int
}

func (c *Client) do(ctx context.Context, req call) (*Response, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, req)
	status := 0
	if resp != nil {
		status = resp.Status
	} else if apiErr, ok := err.(*Error); ok {
		status = apiErr.Status
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "allauth request",
		slog.String("op", req.op),
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(start)),
	)
	if c.observer != nil {
		c.observer.ObserveCall(req.op, status, err)
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, req call) (*Response, error) {
	var payload io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, &Error{Op: req.op, Kind: KindMalformed, Message: "encode request: " + err.Error(), Err: err}
		}
		payload = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path).String(), payload)
	if err != nil {
		return nil, transportError(req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if token, ok := c.CSRFToken(); ok {
		httpReq.Header.Set(CSRFHeaderName, token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(req.op, err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(req.op, err)
	}

	if !accepted(httpResp.StatusCode, req.accept) {
		return nil, statusError(req.op, httpResp.StatusCode, body)
	}

	out := &Response{Status: httpResp.StatusCode}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformedError(req.op, httpResp.StatusCode, err)
	}
	if env.Status != 0 {
		out.Status = env.Status
	}
	out.Data = env.Data
	out.Meta = env.Meta
	return out, nil
}

func accepted(status int, extra []int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	for _, s := range extra {
		if s == status {
			return true
		}
	}
	return false
}

func decode(op string, resp *Response, raw json.RawMessage, out any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return malformedError(op, resp.Status, err)
	}
	return nil
}
