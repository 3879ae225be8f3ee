// Package agentquery looks up agent session details from the local agent
// server over its loopback HTTP API.
package agentquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
)

const defaultTimeout = 5 * time.Second

// Client queries the agent server for session information
type Client struct {
	endpoint string
	http     *http.Client
	log      *logger.Logger
}

// NewClient creates a client for the agent server at the given loopback URL
func NewClient(endpoint string, log *logger.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("agent endpoint is not configured")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid agent endpoint %s: %w", endpoint, err)
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		log:      log.WithPrefix("agentquery"),
	}, nil
}

// SessionModel returns the model the given agent session is running
func (c *Client) SessionModel(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session ID must not be empty")
	}

	reqURL := fmt.Sprintf("%s/api/sessions/%s", c.endpoint, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build session request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent server returned %d for session %s", resp.StatusCode, sessionID)
	}

	var payload struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if payload.Model == "" {
		return "", fmt.Errorf("session %s has no model", sessionID)
	}

	c.log.Debug("Session %s runs model %s", sessionID, payload.Model)

	return payload.Model, nil
}
