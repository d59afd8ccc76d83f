package remote

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
	"sync"
	"time"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/auth"
)

// StatusError is an unexpected response from the attendance API.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("attendance api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the attendance API on behalf of a station.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client. The HTTP timeout is a backstop; callers bound each
// call with their own context.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Register registers stationID and keeps the issued access token.
func (c *Client) Register(ctx context.Context, stationID string) (auth.TokenPair, error) {
	var tokens auth.TokenPair
	err := c.do(ctx, http.MethodPost, "/v1/stations/register", map[string]string{"station_id": stationID}, &tokens)
	if err != nil {
		return auth.TokenPair{}, err
	}
	c.SetToken(tokens.AccessToken)
	return tokens, nil
}

// Refresh rotates the refresh token and keeps the new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	var tokens auth.TokenPair
	err := c.do(ctx, http.MethodPost, "/v1/stations/refresh", map[string]string{"refresh_token": refreshToken}, &tokens)
	if err != nil {
		return auth.TokenPair{}, err
	}
	c.SetToken(tokens.AccessToken)
	return tokens, nil
}

func (c *Client) FetchAll(ctx context.Context) ([]attendee.Attendee, error) {
	return c.Search(ctx, "")
}

// Search lists attendees whose name or email contains q.
func (c *Client) Search(ctx context.Context, q string) ([]attendee.Attendee, error) {
	path := "/v1/attendees"
	if q != "" {
		path += "?q=" + url.QueryEscape(q)
	}
	var out struct {
		Attendees []attendee.Attendee `json:"attendees"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Attendees, nil
}

func (c *Client) FetchByBarcode(ctx context.Context, code string) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodGet, "/v1/attendees/barcode/"+url.PathEscape(code), nil)
}

func (c *Client) FetchByID(ctx context.Context, id string) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodGet, "/v1/attendees/"+url.PathEscape(id), nil)
}

func (c *Client) TimeIn(ctx context.Context, id string) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodPost, "/v1/attendees/"+url.PathEscape(id)+"/time-in", nil)
}

func (c *Client) TimeOut(ctx context.Context, id string) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodPost, "/v1/attendees/"+url.PathEscape(id)+"/time-out", nil)
}

func (c *Client) Toggle(ctx context.Context, id string) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodPost, "/v1/attendees/"+url.PathEscape(id)+"/toggle", nil)
}

// Create registers an attendee. An email already in use yields a
// *StatusError with status 409.
func (c *Client) Create(ctx context.Context, r attendee.Registration) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodPost, "/v1/attendees", r)
}

func (c *Client) UpdateFields(ctx context.Context, id string, p attendee.Patch) (attendee.Attendee, error) {
	return c.one(ctx, http.MethodPatch, "/v1/attendees/"+url.PathEscape(id), p)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/attendees/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (attendee.Summary, error) {
	var s attendee.Summary
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s)
	return s, err
}

// Health checks if the attendance API is available.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) one(ctx context.Context, method, path string, in any) (attendee.Attendee, error) {
	var a attendee.Attendee
	if err := c.do(ctx, method, path, in, &a); err != nil {
		return attendee.Attendee{}, err
	}
	return a, nil
}

type errorBody struct {
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Attendee *attendee.Attendee `json:"attendee"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError maps an error response onto the errors the check-in workflow
// distinguishes: not found, rule violations and everything else.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Code == "" {
		eb = errorBody{Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", attendee.ErrNotFound, eb.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", attendee.ErrInvalid, eb.Message)
	case http.StatusConflict:
		if v := attendee.Violation(eb.Code); isViolation(v) {
			rule := &attendee.RuleError{Violation: v}
			if eb.Attendee != nil {
				rule.Attendee = *eb.Attendee
			}
			return rule
		}
	}
	return &StatusError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Message}
}

func isViolation(v attendee.Violation) bool {
	switch v {
	case attendee.AlreadyInside, attendee.CycleComplete, attendee.NotEntered:
		return true
	}
	return false
}

// IsStatus reports whether err is a *StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
