// Package hosting provides a client for the GitHub REST API.
//
// Only the endpoints needed to read a repository tree and to publish an
// upgrade pull request are covered: contents, branches, refs, pulls, labels
// and requested reviewers. Non-2xx responses are returned as
// *errors.HTTPError so callers can classify them with errors.Is.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Iron-Ham/botdas/internal/errors"
)

const (
	// DefaultBaseURL is the public GitHub REST API root.
	DefaultBaseURL = "https://api.github.com"

	// serviceName labels HTTP errors produced by this client.
	serviceName = "github"

	// apiVersion is sent as X-GitHub-Api-Version.
	apiVersion = "2022-11-28"

	defaultUserAgent = "botdas"
	defaultTimeout   = 30 * time.Second
)

// Client talks to the GitHub REST API.
// A Client is safe for concurrent use; ForToken derives per-request copies.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the API root, e.g. https://ghe.example.com/api/v3.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithToken sets the bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the HTTP client timeout. Zero disables it.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new GitHub client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ForToken returns a copy of the client that authenticates with token.
// An empty token returns the receiver unchanged so a configured fallback
// credential stays in effect.
func (c *Client) ForToken(token string) *Client {
	if token == "" {
		return c
	}
	cp := *c
	cp.token = token
	return &cp
}

// HasToken reports whether the client carries a credential.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// repoPath builds /repos/{owner}/{repo} followed by escaped segments.
func repoPath(owner, repo string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString("/repos/")
	sb.WriteString(url.PathEscape(owner))
	sb.WriteString("/")
	sb.WriteString(url.PathEscape(repo))
	for _, s := range segments {
		sb.WriteString("/")
		sb.WriteString(s)
	}
	return sb.String()
}

// escapePath escapes each segment of a slash-separated repository path.
func escapePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		reqBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(reqBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewHTTPError(serviceName, method, endpoint, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
