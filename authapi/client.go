// Package authapi is an HTTP client for the remote authentication service.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-openapi/runtime"
	"github.com/google/uuid"

	"github.com/jmcleod/ironsession/auth"
)

const (
	DefaultLoginPath  = "/auth/login"
	DefaultLogoutPath = "/auth/logout"
	DefaultTimeout    = 30 * time.Second

	maxErrorBody = 1 << 20
)

// Client is the auth API client.
type Client struct {
	baseURL    string
	loginPath  string
	logoutPath string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	producer   runtime.Producer
	consumer   runtime.Consumer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its timeout is kept
// unless WithTimeout is also given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. It applies to the final HTTP
// client regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEndpoints overrides the login and logout paths.
func WithEndpoints(login, logout string) Option {
	return func(c *Client) {
		if login != "" {
			c.loginPath = login
		}
		if logout != "" {
			c.logoutPath = logout
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a new auth API client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		loginPath:  DefaultLoginPath,
		logoutPath: DefaultLogoutPath,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		producer:   runtime.JSONProducer(),
		consumer:   runtime.JSONConsumer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for a user, profiles and a token pair.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (*auth.LoginResponse, error) {
	var resp auth.LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, c.loginPath, creds, &resp); err != nil {
		return nil, fmt.Errorf("authapi.Login: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("authapi.Login: %w: %w", ErrInvalidResponse, err)
	}
	return &resp, nil
}

// Logout invalidates refreshToken on the server.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, c.logoutPath, logoutRequest{RefreshToken: refreshToken}, nil); err != nil {
		return fmt.Errorf("authapi.Logout: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := c.producer.Produce(&buf, body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", runtime.JSONMime)
	if body != nil {
		req.Header.Set("Content-Type", runtime.JSONMime)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readHTTPError(resp)
	}

	if out != nil {
		if err := c.consumer.Consume(resp.Body, out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrInvalidResponse, err)
		}
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
	}
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(respBody, &apiErr) == nil {
		if apiErr.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message, fromServer: true}
		}
		if apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error, fromServer: true}
		}
	}
	msg := strings.TrimSpace(string(respBody))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
}

