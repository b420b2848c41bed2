package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InitDataHeader carries the Telegram mini-app auth blob; the backend
// validates it on every request.
const InitDataHeader = "X-Telegram-Init-Data"

// StatusError is a non-2xx backend response. Detail is the backend's
// human-readable message; for rate limiting it embeds the residual wait.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// RateLimited reports whether the backend throttled the request.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// errorBody is the backend's uniform failure shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// Client talks to the battle backend over JSON REST. All mutating calls
// take a context; no retry is performed here, transient-failure policy
// belongs to the callers.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient builds a client for the given origin. initData is attached
// to every request as the auth header; pass an empty string in tests.
func NewClient(baseURL, initData string) *Client {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
	if initData != "" {
		c.headers[InitDataHeader] = initData
	}
	return c
}

// SetHeader overrides or adds a default request header.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(responseBody)
		var eb errorBody
		if json.Unmarshal(responseBody, &eb) == nil && eb.Detail != "" {
			detail = eb.Detail
		}
		log.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Str("detail", detail).
			Msg("api request failed")
		return nil, &StatusError{StatusCode: resp.StatusCode, Detail: detail}
	}

	return responseBody, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	data, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
	}
	data, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// GetProfile fetches the authenticated user's account state.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/api/profile", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListRooms returns the joinable rooms.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var rl RoomList
	if err := c.getJSON(ctx, "/api/rooms", &rl); err != nil {
		return nil, err
	}
	return rl.Rooms, nil
}

// CreateRoom opens a new room owned by the caller.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	var r Room
	in := map[string]string{"name": name}
	if err := c.postJSON(ctx, "/api/rooms", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// JoinRoom enters a room by invite code and returns the room plus any
// attached battle state.
func (c *Client) JoinRoom(ctx context.Context, inviteCode string) (*JoinRoomResponse, error) {
	var jr JoinRoomResponse
	in := map[string]string{"invite_code": inviteCode}
	if err := c.postJSON(ctx, "/api/rooms/join", in, &jr); err != nil {
		return nil, err
	}
	return &jr, nil
}

// DeleteRoom removes a room the caller owns.
func (c *Client) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/rooms/"+roomID.String(), nil)
	return err
}

// GetBattle fetches the authoritative snapshot for a battle.
func (c *Client) GetBattle(ctx context.Context, battleID uuid.UUID) (*BattleState, error) {
	var bs BattleState
	if err := c.getJSON(ctx, "/api/battle/"+battleID.String(), &bs); err != nil {
		return nil, err
	}
	return &bs, nil
}

// Fire spends balance on the caller's active match and returns the
// authoritative deltas.
func (c *Client) Fire(ctx context.Context, req FireRequest) (*FireResponse, error) {
	var fr FireResponse
	if err := c.postJSON(ctx, "/api/vote", req, &fr); err != nil {
		return nil, err
	}
	return &fr, nil
}

// SendGift transfers balance to another player.
func (c *Client) SendGift(ctx context.Context, req GiftRequest) (*GiftResponse, error) {
	var gr GiftResponse
	if err := c.postJSON(ctx, "/api/gift", req, &gr); err != nil {
		return nil, err
	}
	return &gr, nil
}
