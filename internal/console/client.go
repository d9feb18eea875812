package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"waypoint/internal/clock"
	"waypoint/internal/models"
)

// Client talks to a running waypoint API
type Client struct {
	httpClient *http.Client
	BaseURL    string
	Token      string
	DecidedBy  string
}

// NewClient creates a client for baseURL. A non-empty token is sent as a
// bearer token on every request.
func NewClient(baseURL, token, decidedBy string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		DecidedBy:  decidedBy,
	}
}

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

type actionList struct {
	Actions []models.Action `json:"actions"`
	Count   int             `json:"count"`
}

// Health checks if the API is up
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Pending lists actions waiting for a decision
func (c *Client) Pending(ctx context.Context) ([]models.Action, error) {
	var out actionList
	if err := c.do(ctx, http.MethodGet, "/api/v1/actions/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

// History lists the most recent actions
func (c *Client) History(ctx context.Context, limit int) ([]models.Action, error) {
	var out actionList
	path := "/api/v1/actions/history?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

// Approve approves an action and returns it after execution
func (c *Client) Approve(ctx context.Context, id string) (*models.Action, error) {
	return c.decide(ctx, id, "approve")
}

// Decline declines an action
func (c *Client) Decline(ctx context.Context, id string) (*models.Action, error) {
	return c.decide(ctx, id, "decline")
}

func (c *Client) decide(ctx context.Context, id, verb string) (*models.Action, error) {
	var body any
	if c.Token == "" {
		body = map[string]string{"decided_by": c.DecidedBy}
	}
	var a models.Action
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions/"+id+"/"+verb, body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ClockStatus returns the simulation clock state
func (c *Client) ClockStatus(ctx context.Context) (clock.Status, error) {
	var st clock.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/clock/status", nil, &st)
	return st, err
}

// Step runs one tick on the server
func (c *Client) Step(ctx context.Context) (clock.Status, error) {
	var st clock.Status
	err := c.do(ctx, http.MethodPost, "/api/v1/clock/step", nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
