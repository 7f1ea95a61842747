/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package graphqlws is the reference signaling.Adapter binding of spec.md
// §6: a GraphQL subscription (onRoomInteraction) and a handful of mutations
// (sendSDPOffer, sendSDPAnswer, sendICECandidate, finishCall, joined)
// carried over a plain websocket. No GraphQL client library exists
// anywhere this package was grounded on, so the wire frames are hand-rolled
// JSON envelopes — exactly as the Mercury protocol this package's
// reconnect/keepalive logic is adapted from is itself a hand-framed,
// non-GraphQL websocket protocol.
package graphqlws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/relaycall/callorc/events"
	"github.com/relaycall/callorc/signaling"
	"github.com/relaycall/callorc/webexsdk"
)

// Config holds the tunables for reconnection, keepalive, and call
// acknowledgement timeouts.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	BackoffTimeReset  time.Duration
	BackoffTimeMax    time.Duration
	MaxRetries        int
	KeepaliveInterval time.Duration
	CallTimeout       time.Duration
}

// DefaultConfig returns the reference binding's defaults.
func DefaultConfig() *Config {
	return &Config{
		PingInterval:      30 * time.Second,
		PongTimeout:       10 * time.Second,
		BackoffTimeReset:  1 * time.Second,
		BackoffTimeMax:    32 * time.Second,
		MaxRetries:        5,
		KeepaliveInterval: 10 * time.Second,
		CallTimeout:       10 * time.Second,
	}
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// wireMessage is the envelope every frame in either direction uses.
type wireMessage struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Name       string          `json:"name,omitempty"`
	Variables  json.RawMessage `json:"variables,omitempty"`
	OK         bool            `json:"ok,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	// TrackingID correlates every mutation on one connection for
	// server-side log correlation, the same purpose v1/mercury/mercury.go's
	// per-connect "TrackingID" header serves — generated once per dial
	// here instead of from a timestamp.
	TrackingID string `json:"trackingId,omitempty"`
}

type pendingCall struct {
	ok  bool
	err string
}

// Client implements signaling.Adapter against the onRoomInteraction wire
// schema.
type Client struct {
	url    string
	token  string
	config *Config
	logger Logger
	dialer *websocket.Dialer
	events *events.Emitter

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	connecting  bool
	roomID      string
	closeCh     chan struct{}
	done        chan struct{}
	keepaliveCh chan struct{}
	nextCallID  int
	pending     map[string]chan pendingCall
	trackingID  string
}

var _ signaling.Adapter = (*Client)(nil)

// New constructs a Client dialing url, authenticating with token. A nil
// config uses DefaultConfig; a nil logger disables logging.
func New(url, token string, config *Config, logger Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		url:     url,
		token:   token,
		config:  config,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events:  events.New(),
		pending: make(map[string]chan pendingCall),
	}
}

// NewFromWebexClient builds a Client that authenticates its websocket
// handshake with the access token of an already-authenticated
// webexsdk.Client. This lets a deployment share one OAuth session between
// any REST-side bootstrap and this package's websocket-side signaling,
// instead of juggling the token twice.
func NewFromWebexClient(url string, webex *webexsdk.Client, config *Config, logger Logger) *Client {
	return New(url, webex.GetAccessToken(), config, logger)
}

func (c *Client) logf(format string, v ...any) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}

// Connected reports whether the websocket transport is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Events returns the Emitter signaling.EventXxx notifications are
// dispatched through.
func (c *Client) Events() *events.Emitter { return c.events }

// Connect dials the websocket with exponential backoff, then best-effort
// issues the initial joined mutation and starts the keepalive loop that
// periodically re-issues it (spec.md §6 "eagerly re-issue joined").
func (c *Client) Connect(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.roomID = roomID
	c.closeCh = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.connectWithBackoff(ctx); err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		return err
	}

	_ = c.call(ctx, "joined", map[string]any{"roomId": roomID})
	c.startKeepalive(roomID)
	c.events.Emit(signaling.EventOpen, signaling.PeerRef{RoomID: roomID})
	return nil
}

func (c *Client) connectWithBackoff(ctx context.Context) error {
	backoff := c.config.BackoffTimeReset
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.dial(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.config.BackoffTimeMax {
				backoff = c.config.BackoffTimeMax
			}
		case <-c.closeCh:
			return fmt.Errorf("graphqlws: connect aborted")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("graphqlws: failed to connect after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("graphqlws: dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.trackingID = "callorc_" + uuid.NewString()
	c.mu.Unlock()

	go c.pingLoop()
	go c.readLoop()
	return nil
}

// Disconnect closes the websocket transport and stops background loops.
// roomID is accepted to satisfy the signaling.Adapter contract symmetry
// with Connect/Finish; the reference binding has only one room live per
// Client so it is not otherwise consulted.
func (c *Client) Disconnect(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}
	close(c.closeCh)
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	c.stopKeepalive()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by client"))
		_ = conn.Close()
	}
	c.events.Emit(signaling.EventClose, signaling.PeerRef{RoomID: roomID})
	return nil
}

// Finish sends the finishCall mutation, best-effort.
func (c *Client) Finish(ctx context.Context, roomID string) error {
	return c.call(ctx, "finishCall", map[string]any{"roomId": roomID})
}

// SendSDPOffer sends the sendSDPOffer mutation.
func (c *Client) SendSDPOffer(ctx context.Context, roomID, sdp string) error {
	return c.call(ctx, "sendSDPOffer", map[string]any{"roomId": roomID, "sdp": sdp})
}

// SendSDPAnswer sends the sendSDPAnswer mutation.
func (c *Client) SendSDPAnswer(ctx context.Context, roomID, sdp string) error {
	return c.call(ctx, "sendSDPAnswer", map[string]any{"roomId": roomID, "sdp": sdp})
}

// SendICECandidate sends the sendICECandidate mutation.
func (c *Client) SendICECandidate(ctx context.Context, roomID, candidate string) error {
	return c.call(ctx, "sendICECandidate", map[string]any{"roomId": roomID, "candidate": candidate})
}

// call issues a named mutation and waits for its ack, up to CallTimeout.
func (c *Client) call(ctx context.Context, name string, variables map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("graphqlws: %s: not connected", name)
	}
	c.nextCallID++
	id := fmt.Sprintf("%d", c.nextCallID)
	trackingID := c.trackingID
	ack := make(chan pendingCall, 1)
	c.pending[id] = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	varsJSON, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("graphqlws: %s: marshal variables: %w", name, err)
	}

	msg := wireMessage{ID: id, Type: "mutation", Name: name, Variables: varsJSON, TrackingID: trackingID}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("graphqlws: %s: marshal: %w", name, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("graphqlws: %s: write: %w", name, err)
	}

	timeout := c.config.CallTimeout
	select {
	case result := <-ack:
		if !result.ok {
			return fmt.Errorf("graphqlws: %s: %s", name, result.err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("graphqlws: %s: timed out waiting for ack", name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		conn := c.conn
		wasConnected := c.connected
		c.connected = false
		c.mu.Unlock()
		close(c.done)
		if conn != nil && wasConnected {
			select {
			case <-c.closeCh:
				// deliberate disconnect
			default:
				c.events.Emit(signaling.EventClose, signaling.PeerRef{RoomID: c.roomID})
			}
		}
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logf("graphqlws: malformed frame, dropping: %v", err)
		return
	}

	switch msg.Type {
	case "ack":
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- pendingCall{ok: msg.OK, err: msg.Error}
		}
	case "data":
		c.dispatchRoomInteraction(msg.Payload)
	case "error":
		c.events.Emit(signaling.EventError, fmt.Errorf("graphqlws: subscription error: %s", msg.Error))
		c.events.Emit(signaling.EventClose, signaling.PeerRef{RoomID: c.roomID})
		c.restartKeepaliveNow()
	}
}

// dispatchRoomInteraction plucks the nullable onRoomInteraction fields in
// the fixed order spec.md §6 names and dispatches each present one as an
// event. "joined" is acknowledged internally (it is not part of
// signaling.Adapter's event vocabulary — it exists purely so the server
// can confirm room membership after a keepalive re-announce).
func (c *Client) dispatchRoomInteraction(payload json.RawMessage) {
	root := gjson.GetBytes(payload, "onRoomInteraction")
	if !root.Exists() {
		return
	}

	if joined := root.Get("joined"); joined.Exists() && !joined.IsObject() {
		// no-op: confirms room membership, nothing to dispatch
	}
	if v := root.Get("newPeer"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventNewPeer, signaling.PeerRef{RoomID: c.roomID})
	}
	if v := root.Get("newOffer"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventNewOffer, signaling.SDPPayload{SDP: v.String(), RoomID: c.roomID})
	}
	if v := root.Get("newAnswer"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventNewAnswer, signaling.SDPPayload{SDP: v.String(), RoomID: c.roomID})
	}
	if v := root.Get("newIceCandidate"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventNewIceCandidate, signaling.ICECandidatePayload{Candidate: v.String(), RoomID: c.roomID})
	}
	if v := root.Get("finished"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventFinished, signaling.PeerRef{RoomID: c.roomID})
	}
	if v := root.Get("disconnected"); v.Exists() && v.Value() != nil {
		c.events.Emit(signaling.EventDisconnect, signaling.PeerRef{RoomID: c.roomID})
	}
}

func (c *Client) startKeepalive(roomID string) {
	c.mu.Lock()
	if c.keepaliveCh != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.keepaliveCh = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.config.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), c.config.CallTimeout)
				_ = c.call(ctx, "joined", map[string]any{"roomId": roomID})
				cancel()
			case <-stop:
				return
			case <-c.closeCh:
				return
			}
		}
	}()
}

func (c *Client) restartKeepaliveNow() {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.CallTimeout)
	defer cancel()
	_ = c.call(ctx, "joined", map[string]any{"roomId": roomID})
}

func (c *Client) stopKeepalive() {
	c.mu.Lock()
	stop := c.keepaliveCh
	c.keepaliveCh = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
