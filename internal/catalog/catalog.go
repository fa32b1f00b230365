// Package catalog looks up the public URL assigned to a package after
// the repository finishes its asynchronous import.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
	"github.com/cu-library/etddepositor/internal/logging"
)

// Doer abstracts the HTTP client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy bounds the retry loop. Backoff returns the wait before the
// next attempt; attempt indexes are zero-based, so the first attempt
// runs immediately.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy waits attempt² seconds between attempts.
func DefaultPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client queries the catalog's search endpoint.
type Client struct {
	baseURL string
	token   string
	client  Doer
	logger  *slog.Logger
}

// NewClient builds a catalog client. A nil doer falls back to a
// default HTTP client with a request timeout.
func NewClient(baseURL, token string, doer Doer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{baseURL: baseURL, token: token, client: doer, logger: logger}
}

type searchResponse struct {
	Response struct {
		Docs []struct {
			ID          string   `json:"id"`
			SourceTesim []string `json:"source_tesim"`
		} `json:"docs"`
	} `json:"response"`
}

// Lookup runs one search for the source identifier. It returns the
// public URL when the imported item is found, or "" when the catalog
// has no match yet.
func (c *Client) Lookup(ctx context.Context, sourceIdentifier string) (string, error) {
	endpoint := fmt.Sprintf("%s/catalog.json?sourcetesim=%s", c.baseURL, url.QueryEscape(sourceIdentifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var search searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return "", fmt.Errorf("decode catalog response: %w", err)
	}

	for _, doc := range search.Response.Docs {
		if doc.ID == "" {
			continue
		}
		if slices.Contains(doc.SourceTesim, sourceIdentifier) {
			return fmt.Sprintf("%s/concern/etds/%s", c.baseURL, doc.ID), nil
		}
	}
	return "", nil
}

// Resolve polls Lookup under the retry policy until the item appears.
// Exhausting the policy fails only the package, not the run.
func (c *Client) Resolve(ctx context.Context, sourceIdentifier string, policy Policy) (string, error) {
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := policy.sleep(ctx, policy.Backoff(attempt-1)); err != nil {
				return "", err
			}
		}
		url, err := c.Lookup(ctx, sourceIdentifier)
		if err != nil {
			c.logger.Warn("catalog lookup failed",
				logging.String("source_identifier", sourceIdentifier),
				logging.Int("attempt", attempt+1),
				logging.Error(err),
			)
			continue
		}
		if url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("%w: no catalog record for %s after %d attempts",
		etd.ErrGetURLFailed, sourceIdentifier, policy.MaxAttempts)
}
