package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/mapswitch/internal/history"
	"github.com/Iron-Ham/mapswitch/internal/orchestrator"
	"github.com/Iron-Ham/mapswitch/internal/session"
)

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for addr, either host:port or a full URL.
// httpClient may be nil.
func NewClient(addr string, httpClient *http.Client) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if httpClient == nil {
		// No overall timeout: a load waits for the countdown and the copy.
		httpClient = &http.Client{}
	}
	return &Client{base: strings.TrimRight(addr, "/"), http: httpClient}
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (orchestrator.Status, error) {
	var st orchestrator.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// History fetches up to limit recent entries; zero means the server default.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var entries []history.Entry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

// Load installs slot, optionally queueing for the gate.
func (c *Client) Load(ctx context.Context, slot string, wait bool) error {
	return c.do(ctx, http.MethodPost, "/api/load", LoadRequest{Slot: slot, Wait: wait}, nil)
}

// StartVote opens a vote.
func (c *Client) StartVote(ctx context.Context, req orchestrator.VoteRequest) (session.VoteState, error) {
	var state session.VoteState
	err := c.do(ctx, http.MethodPost, "/api/votes", req, &state)
	return state, err
}

// CurrentVote fetches the running vote.
func (c *Client) CurrentVote(ctx context.Context) (session.VoteState, error) {
	var state session.VoteState
	err := c.do(ctx, http.MethodGet, "/api/votes/current", nil, &state)
	return state, err
}

// CancelVote interrupts the running vote.
func (c *Client) CancelVote(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/votes/current", nil, nil)
}

// Cast casts voter's ballot.
func (c *Client) Cast(ctx context.Context, voter, option string) (session.Option, error) {
	var resp BallotResponse
	err := c.do(ctx, http.MethodPost, "/api/votes/current/ballots", BallotRequest{Voter: voter, Option: option}, &resp)
	return resp.Option, err
}

// DelayRolling pushes the next roll back by minutes (zero means the default).
func (c *Client) DelayRolling(ctx context.Context, minutes int) (time.Time, error) {
	var resp RollingResponse
	err := c.do(ctx, http.MethodPost, "/api/rolling/delay", DelayRequest{Minutes: minutes}, &resp)
	return resp.NextFire, err
}

// StartRolling (re)starts automatic rolling.
func (c *Client) StartRolling(ctx context.Context) (time.Time, error) {
	var resp RollingResponse
	err := c.do(ctx, http.MethodPost, "/api/rolling/start", nil, &resp)
	return resp.NextFire, err
}

// StopRolling stops automatic rolling.
func (c *Client) StopRolling(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/rolling/stop", nil, nil)
}

// Reload makes the daemon re-read its configuration file.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reload", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reach mapswitch daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil {
		se.Code = body.Code
		se.Message = body.Error
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}
