// Package forge speaks the Actions REST dialect of Gitea and GitHub.
// The two platforms differ only in four primitives (auth header, API
// base, raw-file URL, pagination parameter names); everything else in
// the pipeline is platform-agnostic.
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sarfflow/bridgectl/internal/config"
)

const (
	maxRetries = 3
	retryDelay = 2 * time.Second

	jsonTimeout  = 60 * time.Second
	bytesTimeout = 120 * time.Second
)

// Error is a generic forge API or workflow failure.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// AuthError indicates missing or invalid forge credentials. It is
// fatal and carries a remediation hint for the user.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// TimeoutError indicates a polling deadline elapsed. It is kept
// distinct from Error so callers can suggest "try again" rather than
// "check configuration".
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// Forge captures the four platform-specific primitives. All downstream
// logic goes through this interface and the shared Client.
type Forge interface {
	// AuthHeader returns the Authorization header value.
	AuthHeader() string

	// APIBase returns the Actions API base URL for the given repo.
	APIBase(repo string) string

	// RawFileURL returns the URL to fetch a raw file from a branch.
	RawFileURL(repo, ref, filepath string) string

	// PaginationParams returns the query string for pagination.
	PaginationParams(limit, page int) string
}

// Client wraps a Forge with the shared HTTP request logic: retry on
// 5xx and transport errors with linear backoff, immediate surfacing of
// 4xx and application-level errors. It keeps no local state beyond the
// underlying http.Client.
type Client struct {
	Forge Forge
	Repo  string

	httpClient *http.Client

	// test seams
	sleep func(time.Duration)
	now   func() time.Time
}

// New builds a Client for the active platform in cfg.
func New(cfg *config.Config) (*Client, error) {
	repo, err := cfg.ActiveRepo()
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, &AuthError{Message: cfgErr.Message}
		}
		return nil, err
	}
	token, err := cfg.ActiveToken()
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, &AuthError{Message: cfgErr.Message}
		}
		return nil, err
	}

	var forge Forge
	if cfg.Platform() == config.PlatformGitHub {
		forge = &GitHub{Token: token, ServerURL: cfg.ActiveServer()}
	} else {
		forge = &Gitea{Token: token, ServerURL: cfg.ActiveServer()}
	}

	return NewClient(forge, repo), nil
}

// NewClient builds a Client around an explicit Forge; used by tests
// and by callers that already resolved credentials.
func NewClient(forge Forge, repo string) *Client {
	return &Client{
		Forge:      forge,
		Repo:       repo,
		httpClient: &http.Client{},
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body []byte, accept string) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.Forge.AuthHeader())
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "bridgectl")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// RequestJSON performs a JSON API request. A nil out skips decoding
// (dispatch endpoints answer 204 with no body). body may be nil.
func (c *Client) RequestJSON(ctx context.Context, method, url string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	payload, err := c.do(ctx, method, url, encoded, "application/json", jsonTimeout)
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Message: fmt.Sprintf("malformed API response from %s: %v", url, err)}
	}
	return nil
}

// RequestBytes performs a binary request and returns the raw body.
func (c *Client) RequestBytes(ctx context.Context, method, url string) ([]byte, error) {
	return c.do(ctx, method, url, nil, "application/octet-stream", bytesTimeout)
}

// do runs one request with the shared retry policy. HTTP 5xx and
// transport errors retry up to maxRetries with a fixed delay; anything
// else surfaces immediately.
func (c *Client) do(ctx context.Context, method, url string, body []byte, accept string, timeout time.Duration) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("forge request retry", "method", method, "url", url, "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			c.sleep(retryDelay)
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		payload, status, err := c.attempt(reqCtx, method, url, body, accept)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &Error{Message: fmt.Sprintf("API request failed for %s: %v", url, err)}
			continue
		}

		if status >= 200 && status < 300 {
			return payload, nil
		}

		msg := fmt.Sprintf("API error %d for %s", status, url)
		if detail := apiErrorDetail(payload); detail != "" {
			msg += ": " + detail
		}
		if status >= 500 {
			lastErr = &Error{Message: msg}
			continue
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, &AuthError{Message: msg + "\nCheck the configured token and its scopes."}
		}
		return nil, &Error{Message: msg}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, accept string) ([]byte, int, error) {
	req, err := c.newRequest(ctx, method, url, body, accept)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return payload, resp.StatusCode, nil
}

// apiErrorDetail extracts the message from a JSON error body, if any.
func apiErrorDetail(payload []byte) string {
	var parsed struct {
		Message string `json:"message"`
		ErrMsg  string `json:"error"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.ErrMsg
}
