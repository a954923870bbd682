package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/match"
	"github.com/okian/gauntlet/internal/domain/model"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the match API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateMatch creates a bot-filled match.
func (c *Client) CreateMatch(ctx context.Context, theme string) (match.Match, error) {
	var m match.Match
	err := c.do(ctx, http.MethodPost, "/matches", map[string]any{"theme": theme}, &m)
	return m, err
}

// Advance triggers leaving from.
func (c *Client) Advance(ctx context.Context, id string, from match.Status) (service.Result, error) {
	var res service.Result
	err := c.do(ctx, http.MethodPost, "/matches/"+id+"/advance?from="+string(from), nil, &res)
	return res, err
}

// Summary reads the match read model.
func (c *Client) Summary(ctx context.Context, id string) (service.Summary, error) {
	var s service.Summary
	err := c.do(ctx, http.MethodGet, "/matches/"+id, nil, &s)
	return s, err
}

// Snapshots lists the stored stage outputs.
func (c *Client) Snapshots(ctx context.Context, id string) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := c.do(ctx, http.MethodGet, "/matches/"+id+"/snapshots", nil, &snaps)
	return snaps, err
}

// Replay asks the service to re-resolve the match.
func (c *Client) Replay(ctx context.Context, id string) (service.ReplayReport, error) {
	var r service.ReplayReport
	err := c.do(ctx, http.MethodGet, "/matches/"+id+"/replay", nil, &r)
	return r, err
}

// Catalog lists the artifacts on offer.
func (c *Client) Catalog(ctx context.Context) ([]model.Artifact, error) {
	var arts []model.Artifact
	err := c.do(ctx, http.MethodGet, "/artifacts", nil, &arts)
	return arts, err
}

// OpenAccount opens a human bettor account.
func (c *Client) OpenAccount(ctx context.Context, id string, balance int64) (model.Account, error) {
	var acc model.Account
	err := c.do(ctx, http.MethodPost, "/accounts", map[string]any{"id": id, "balance": balance}, &acc)
	return acc, err
}

// Account reads a bettor account.
func (c *Client) Account(ctx context.Context, id string) (model.Account, error) {
	var acc model.Account
	err := c.do(ctx, http.MethodGet, "/accounts/"+id, nil, &acc)
	return acc, err
}

// PlaceBet stakes amount on an entrant.
func (c *Client) PlaceBet(ctx context.Context, matchID, bettorID, entrantID string, amount int64) error {
	return c.do(ctx, http.MethodPost, "/matches/"+matchID+"/bets", map[string]any{
		"bettor_id": bettorID, "entrant_id": entrantID, "amount": amount,
	}, nil)
}

// Gift sends an artifact to a finalist.
func (c *Client) Gift(ctx context.Context, matchID, bettorID, entrantID, artifactID string) error {
	return c.do(ctx, http.MethodPost, "/matches/"+matchID+"/gifts", map[string]any{
		"bettor_id": bettorID, "entrant_id": entrantID, "artifact_id": artifactID,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}
