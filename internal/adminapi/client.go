// Package adminapi talks to the management agent's local automation
// surface. The agent exposes it once installed; before installation the
// endpoint simply refuses connections, which callers treat as a logged,
// non-fatal condition.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agent-remediator/internal/state"
)

// Client is the vendor automation surface, reduced to the two calls the
// remediation workflow needs. It is injected so runs can be exercised
// against a fake without a real agent installed.
type Client interface {
	SetAssignedSite(ctx context.Context, code state.SiteCode) error
	GetAssignedSite(ctx context.Context) (state.SiteCode, error)
}

type siteAssignment struct {
	SiteCode string `json:"site_code"`
}

// HTTPClient implements Client over the agent's local HTTP admin port.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient returns a client for the agent admin surface at baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetAssignedSite pushes a new site assignment to the agent.
func (c *HTTPClient) SetAssignedSite(ctx context.Context, code state.SiteCode) error {
	body, err := json.Marshal(siteAssignment{SiteCode: code.Value()})
	if err != nil {
		return fmt.Errorf("encoding site assignment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/admin/site", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building site assignment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("assigning site %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("assigning site %s: agent returned %s", code, resp.Status)
	}
	return nil
}

// GetAssignedSite queries the agent's live site assignment. This is the
// agent's own view, which can lag or lead the local configuration cache.
func (c *HTTPClient) GetAssignedSite(ctx context.Context) (state.SiteCode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/site", nil)
	if err != nil {
		return state.SiteCode{}, fmt.Errorf("building site query request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return state.SiteCode{}, fmt.Errorf("querying assigned site: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return state.SiteCode{}, fmt.Errorf("querying assigned site: agent returned %s", resp.Status)
	}

	var assignment siteAssignment
	if err := json.NewDecoder(resp.Body).Decode(&assignment); err != nil {
		return state.SiteCode{}, fmt.Errorf("decoding assigned site: %w", err)
	}
	return state.NewSiteCode(assignment.SiteCode), nil
}
