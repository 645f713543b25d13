// Package glpi is a client for the ticketing backend REST API.
package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/config"
)

// ErrNotConfigured is returned when the backend URL or app token is missing.
var ErrNotConfigured = errors.New("glpi: backend not configured")

// ErrNotFound is returned when a user lookup has no match.
var ErrNotFound = errors.New("glpi: not found")

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("glpi %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a rejected session.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a missing backend resource.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the backend on behalf of a session token.
type Client struct {
	baseURL        string
	appToken       string
	http           *http.Client
	loc            *time.Location
	logger         *zap.Logger
	docConcurrency int
}

// NewClient builds a client from configuration.
func NewClient(cfg config.GLPIConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("glpi timezone: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		appToken:       cfg.AppToken,
		http:           httpClient,
		loc:            loc,
		logger:         logger,
		docConcurrency: 4,
	}, nil
}

// SetDocumentConcurrency bounds parallel document detail fetches.
func (c *Client) SetDocumentConcurrency(n int) {
	if n > 0 {
		c.docConcurrency = n
	}
}

// InitSession exchanges a user token for a session token.
func (c *Client) InitSession(ctx context.Context, userToken string) (string, error) {
	var out struct {
		SessionToken string `json:"session_token"`
	}
	header := http.Header{}
	header.Set("Authorization", "user_token "+userToken)
	if err := c.do(ctx, http.MethodGet, "initSession", nil, header, nil, &out); err != nil {
		return "", err
	}
	if out.SessionToken == "" {
		return "", errors.New("glpi initSession: empty session token")
	}
	return out.SessionToken, nil
}

// KillSession closes a session token.
func (c *Client) KillSession(ctx context.Context, session string) error {
	return c.get(ctx, session, "killSession", nil, nil)
}

func (c *Client) get(ctx context.Context, session, path string, query url.Values, out any) error {
	header := http.Header{}
	header.Set("Session-Token", session)
	return c.do(ctx, http.MethodGet, path, query, header, nil, out)
}

// put sends in wrapped as {"input": in}.
func (c *Client) put(ctx context.Context, session, path string, in, out any) error {
	header := http.Header{}
	header.Set("Session-Token", session)
	return c.do(ctx, http.MethodPut, path, nil, header, map[string]any{"input": in}, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("glpi %s: encode: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, query, header, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("glpi %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("glpi %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, header http.Header, body io.Reader) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("glpi %s: %w", path, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("App-Token", c.appToken)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DownloadDocument streams a document's content. The caller closes the body.
func (c *Client) DownloadDocument(ctx context.Context, session string, docID int) (io.ReadCloser, string, error) {
	header := http.Header{}
	header.Set("Session-Token", session)
	header.Set("Accept", "application/octet-stream")
	path := fmt.Sprintf("Document/%d", docID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, header, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("glpi %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

const backendTimeLayout = "2006-01-02 15:04:05"

func (c *Client) parseTime(values ...string) time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if t, err := time.ParseInLocation(backendTimeLayout, v, c.loc); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
