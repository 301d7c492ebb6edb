// Package agent implements the session and run protocol spoken by the remote
// analysis agents.
//
// A call upserts a named session carrying the stage inputs as state, sends
// one run request, and extracts a structured result from the reply. Only
// transport and HTTP failures are returned as errors; malformed replies are
// reported through the Response kind.
package agent

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
	"github.com/Iron-Ham/botdas/internal/logging"
)

// serviceName labels HTTP errors produced by this client.
const serviceName = "agent"

// Session identifies a remote conversation and the state stored with it.
type Session struct {
	AppName   string         `json:"appName"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	State     map[string]any `json:"state"`
}

// SessionConfig selects the session a Call runs in.
type SessionConfig struct {
	AppName   string
	UserID    string
	SessionID string
	// Instruction is sent ahead of the JSON-encoded inputs.
	Instruction string
	// State is merged into the session state next to the inputs.
	State map[string]any
}

// Client talks to an agent server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each Call, upsert and run together. Zero disables it.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the agent server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call upserts the session with inputs as state, runs it, and extracts the
// reply.
func (c *Client) Call(ctx context.Context, inputs any, cfg SessionConfig) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		return Response{}, fmt.Errorf("marshal inputs: %w", err)
	}

	state := make(map[string]any, len(cfg.State)+1)
	for k, v := range cfg.State {
		state[k] = v
	}
	state["inputs"] = json.RawMessage(payload)

	session := Session{
		AppName:   cfg.AppName,
		UserID:    cfg.UserID,
		SessionID: cfg.SessionID,
		State:     state,
	}
	if err := c.Upsert(ctx, session); err != nil {
		return Response{}, c.deadline(ctx, cfg.AppName+" session upsert", err)
	}

	text := string(payload)
	if cfg.Instruction != "" {
		text = cfg.Instruction + "\n\n" + text
	}

	start := time.Now()
	raw, err := c.Run(ctx, cfg, text)
	if err != nil {
		return Response{}, c.deadline(ctx, cfg.AppName+" run", err)
	}

	resp := Extract(raw)
	c.logger.Debug("agent call completed",
		"app", cfg.AppName,
		"session_id", cfg.SessionID,
		"kind", resp.Kind.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// deadline converts a context deadline into a TimeoutError.
func (c *Client) deadline(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeoutError(op, c.timeout).WithCause(err)
	}
	return err
}

type sessionRequest struct {
	State map[string]any `json:"state"`
}

// Upsert creates the session, or updates it when it already exists.
//
// Sessions are not locked. Two callers upserting the same identity race and
// the last write wins; this is the intended contract, not corruption.
// Repeating an upsert always leaves exactly one session holding the most
// recent state.
func (c *Client) Upsert(ctx context.Context, s Session) error {
	endpoint := c.sessionURL(s)
	body := sessionRequest{State: s.State}
	if body.State == nil {
		body.State = map[string]any{}
	}

	_, err := c.send(ctx, http.MethodPost, endpoint, body)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrAlreadyExists) {
		return err
	}

	c.logger.Debug("session exists, updating",
		"app", s.AppName,
		"session_id", s.SessionID,
	)
	_, err = c.send(ctx, http.MethodPatch, endpoint, body)
	return err
}

type runRequest struct {
	AppName    string  `json:"app_name"`
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id"`
	NewMessage message `json:"new_message"`
}

type message struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Run sends one user message to the session and returns the raw reply.
func (c *Client) Run(ctx context.Context, cfg SessionConfig, text string) ([]byte, error) {
	req := runRequest{
		AppName:   cfg.AppName,
		UserID:    cfg.UserID,
		SessionID: cfg.SessionID,
		NewMessage: message{
			Role:  "user",
			Parts: []part{{Text: text}},
		},
	}
	return c.send(ctx, http.MethodPost, c.baseURL+"/run", req)
}

func (c *Client) sessionURL(s Session) string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s",
		c.baseURL,
		url.PathEscape(s.AppName),
		url.PathEscape(s.UserID),
		url.PathEscape(s.SessionID),
	)
}

// send issues a JSON request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, endpoint string, in any) ([]byte, error) {
	reqBytes, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewHTTPError(serviceName, method, endpoint, resp.StatusCode, body)
	}
	return body, nil
}
