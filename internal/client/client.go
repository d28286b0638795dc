// Package client provides an HTTP client for the proptech-copilot REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/engine"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

const (
	userHeader = "X-User-ID"
	maxTries   = 3
)

// Client is an HTTP client for the proptech-copilot API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

// New creates a new API client acting as userID.
func New(baseURL, userID string) *Client {
	return &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return b
		},
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return e.Message }

// ResetResponse is the response from POST /api/properties/{id}/reset.
type ResetResponse struct {
	PropertyID string `json:"property_id"`
	Reset      bool   `json:"reset"`
}

// ChangeOptions filters ListChanges.
type ChangeOptions struct {
	EntityType string
	EntityID   string
	SessionID  string
	Limit      int
	Offset     int
}

// ListProperties returns the caller's view of every property.
func (c *Client) ListProperties() ([]*scenario.EffectiveView, error) {
	var views []*scenario.EffectiveView
	if err := c.get("/api/properties", &views); err != nil {
		return nil, err
	}
	return views, nil
}

// GetView returns the caller's view of one property.
func (c *Client) GetView(propertyID string) (*scenario.EffectiveView, error) {
	var v scenario.EffectiveView
	if err := c.get(propertyPath(propertyID, "view"), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CloseFloors closes floors in the caller's scenario.
func (c *Client) CloseFloors(propertyID string, floors []int, sessionID string) (*scenario.MutationResult, error) {
	return c.floors(propertyID, "close", floors, sessionID)
}

// OpenFloors reopens floors in the caller's scenario.
func (c *Client) OpenFloors(propertyID string, floors []int, sessionID string) (*scenario.MutationResult, error) {
	return c.floors(propertyID, "open", floors, sessionID)
}

func (c *Client) floors(propertyID, action string, floors []int, sessionID string) (*scenario.MutationResult, error) {
	body := map[string]any{"floors": floors, "session_id": sessionID}
	var res scenario.MutationResult
	if err := c.post(propertyPath(propertyID, action), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reset discards the caller's overrides for one property.
func (c *Client) Reset(propertyID, sessionID string) (*ResetResponse, error) {
	var res ResetResponse
	if err := c.post(propertyPath(propertyID, "reset"), map[string]string{"session_id": sessionID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResetAll discards all of the caller's overrides and returns how many
// properties were reset.
func (c *Client) ResetAll(sessionID string) (int, error) {
	var res struct {
		ResetCount int `json:"reset_count"`
	}
	if err := c.post("/api/reset", map[string]string{"session_id": sessionID}, &res); err != nil {
		return 0, err
	}
	return res.ResetCount, nil
}

// ListOverlays returns the caller's stored overrides.
func (c *Client) ListOverlays() ([]*overlay.State, error) {
	var states []*overlay.State
	if err := c.get("/api/overlays", &states); err != nil {
		return nil, err
	}
	return states, nil
}

// UpdateParams changes the caller's hybrid intensity or target occupancy.
func (c *Client) UpdateParams(propertyID string, req scenario.ParamsRequest, sessionID string) (*scenario.EffectiveView, error) {
	body := struct {
		scenario.ParamsRequest
		SessionID string `json:"session_id,omitempty"`
	}{req, sessionID}
	var v scenario.EffectiveView
	if err := c.post(propertyPath(propertyID, "params"), body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListChanges returns the caller's change log, newest first.
func (c *Client) ListChanges(opts ChangeOptions) ([]audit.Change, error) {
	q := url.Values{}
	setQuery(q, "entity_type", opts.EntityType)
	setQuery(q, "entity_id", opts.EntityID)
	setQuery(q, "session_id", opts.SessionID)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/changes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var changes []audit.Change
	if err := c.get(path, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// ChangeStats summarizes the caller's changes.
func (c *Client) ChangeStats() (*audit.Stats, error) {
	var s audit.Stats
	if err := c.get("/api/changes/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EntityHistory returns the changes to one entity.
func (c *Client) EntityHistory(entityType, entityID string, limit int) ([]audit.Change, error) {
	path := "/api/history/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var changes []audit.Change
	if err := c.get(path, &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// StartSession opens an editing session.
func (c *Client) StartSession(deviceInfo string) (*audit.Session, error) {
	var s audit.Session
	if err := c.post("/api/sessions", map[string]string{"device_info": deviceInfo}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EndSession closes an editing session.
func (c *Client) EndSession(sessionID string) (*audit.Session, error) {
	var s audit.Session
	if err := c.post("/api/sessions/"+url.PathEscape(sessionID)+"/end", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the caller's sessions, newest first.
func (c *Client) ListSessions(limit int) ([]*audit.Session, error) {
	path := "/api/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var sessions []*audit.Session
	if err := c.get(path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionSummary returns a session with every change made in it.
func (c *Client) SessionSummary(sessionID string) (*audit.SessionSummary, error) {
	var s audit.SessionSummary
	if err := c.get("/api/sessions/"+url.PathEscape(sessionID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Recommendations returns the recommendations for one property.
func (c *Client) Recommendations(propertyID string) ([]engine.Recommendation, error) {
	var recs []engine.Recommendation
	if err := c.get(propertyPath(propertyID, "recommendations"), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Forecast returns the 7-day occupancy forecast for one property.
func (c *Client) Forecast(propertyID string) ([]engine.ForecastPoint, error) {
	var points []engine.ForecastPoint
	if err := c.get(propertyPath(propertyID, "forecast"), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Risk returns the location risk and carbon footprint of one property.
func (c *Client) Risk(propertyID string) (*scenario.RiskReport, error) {
	var report scenario.RiskReport
	if err := c.get(propertyPath(propertyID, "risk"), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func propertyPath(propertyID, action string) string {
	return "/api/properties/" + url.PathEscape(propertyID) + "/" + action
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// get performs a GET request and decodes the response.
func (c *Client) get(path string, result any) error {
	return c.do(http.MethodGet, path, nil, result)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(path string, body any, result any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}
	return c.do(http.MethodPost, path, data, result)
}

// do executes a request, retrying while the server reports busy storage.
func (c *Client) do(method, path string, body []byte, result any) error {
	op := func() (struct{}, error) {
		err := c.once(method, path, body, result)
		var se *StatusError
		if err != nil && !(errors.As(err, &se) && se.Code == http.StatusServiceUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(context.Background(), op,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(maxTries),
	)
	return err
}

func (c *Client) once(method, path string, body []byte, result any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("warning: closing response body: %v\n", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := "server error: " + http.StatusText(resp.StatusCode)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
