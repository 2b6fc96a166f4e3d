// Package projectapi talks to the main filmWithAi backend for project
// authorization, project snapshots, and conte persistence. Room and
// presence state never leaves this process; only domain data crosses
// this boundary.
package projectapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gistjackdaniel/filmWithAi-sub002/domain"
)

const requestTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type accessResponse struct {
	Allowed bool `json:"allowed"`
}

// CanAccess asks the backend whether the user may open the project.
// Callers pass a context with a deadline and treat any error, including
// a deadline hit, as a refusal.
func (c *Client) CanAccess(ctx context.Context, userID, projectID string) (bool, error) {
	u := fmt.Sprintf("%s/api/projects/%s/access?userId=%s",
		c.baseURL, url.PathEscape(projectID), url.QueryEscape(userID))
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	var resp accessResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode access response: %w", err)
	}
	return resp.Allowed, nil
}

// Snapshot fetches the authoritative project state, contes included.
func (c *Client) Snapshot(ctx context.Context, projectID string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/api/projects/%s/snapshot", c.baseURL, url.PathEscape(projectID))
	return c.do(ctx, http.MethodGet, u, nil)
}

// Update applies a partial conte update and returns the stored conte.
func (c *Client) Update(ctx context.Context, projectID, conteID string, patch json.RawMessage) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/api/projects/%s/contes/%s",
		c.baseURL, url.PathEscape(projectID), url.PathEscape(conteID))
	return c.do(ctx, http.MethodPatch, u, patch)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return nil, domain.ErrForbidden
	default:
		return nil, fmt.Errorf("backend returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}
