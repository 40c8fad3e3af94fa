package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/publish"
	"github.com/sirupsen/logrus"
)

// Client dispatches upload tasks to a remote agent over HTTP. It
// implements publish.Dispatcher, so an orchestrator can swap it in for
// the in-process dispatcher without touching the pipeline. No client
// timeout is set: the run inherits whatever the storage transport and
// context impose.
type Client struct {
	log   logrus.FieldLogger
	url   string
	token string
	http  *http.Client
}

// Ensure interface compliance.
var _ publish.Dispatcher = (*Client)(nil)

// NewClient creates a dispatcher that ships tasks to the agent at the
// configured base URL.
func NewClient(log logrus.FieldLogger, cfg *config.AgentClientConfig) *Client {
	return &Client{
		log:   log.WithField("component", "agent-client"),
		url:   strings.TrimRight(cfg.URL, "/"),
		token: cfg.AuthToken,
		http:  &http.Client{},
	}
}

// Dispatch posts the task to the agent and maps non-200 responses to
// errors carrying the agent's message.
func (c *Client) Dispatch(ctx context.Context, task publish.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url+"/api/v1/uploads", bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("building agent request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dispatching task to agent: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apiErr errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTaskBytes)).Decode(&apiErr); err != nil ||
		apiErr.Error == "" {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	return fmt.Errorf("agent returned status %d: %s", resp.StatusCode, apiErr.Error)
}
