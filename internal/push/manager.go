package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of the push channel.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

// ConnectionState is the externally visible channel state.
type ConnectionState struct {
	Status        Status
	LastMessageAt time.Time
}

// Config holds configuration for the push channel.
type Config struct {
	// BaseURL is the websocket origin, e.g. wss://host. The battle path is
	// appended per target.
	BaseURL string

	// Header is sent on every dial (carries the auth init data).
	Header http.Header

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReconnectDelay   time.Duration
}

// DefaultConfig returns the reference channel timings: keep-alive ping
// every 25s to defeat idle-timeout proxies, flat 3s retry on any close.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Header:           http.Header{},
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     25 * time.Second,
		ReconnectDelay:   3 * time.Second,
	}
}

// Manager owns at most one open websocket scoped to the current target
// battle. It redials on any close with a fixed delay for as long as a
// target is set, and emits typed events until Close.
type Manager struct {
	config Config
	clock  clockwork.Clock
	events chan Event

	mu        sync.Mutex
	target    uuid.UUID
	conn      *websocket.Conn
	done      chan struct{} // per-connection; closed the moment the connection is torn down
	state     ConnectionState
	gen       int // bumped on retarget/teardown; stale pumps check it and bail
	reconnect clockwork.Timer
	closed    bool
}

// NewManager creates a push channel manager. No connection is opened
// until SetTarget is called with a battle id.
func NewManager(config Config, clock clockwork.Clock) *Manager {
	return &Manager{
		config: config,
		clock:  clock,
		events: make(chan Event, 128),
		state:  ConnectionState{Status: StatusClosed},
	}
}

// Events returns the typed event stream. The channel is closed by Close
// and never after; teardown guarantees no trailing emissions.
func (m *Manager) Events() <-chan Event { return m.events }

// State returns a copy of the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetTarget points the channel at a battle. uuid.Nil tears the channel
// down without opening a new one. Re-setting the current target is a
// no-op; a changed target closes the old socket before dialing the new
// battle's endpoint.
func (m *Manager) SetTarget(battleID uuid.UUID) {
	m.mu.Lock()
	if m.closed || battleID == m.target {
		m.mu.Unlock()
		return
	}

	m.teardownLocked()
	m.target = battleID
	if battleID == uuid.Nil {
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen
	m.state.Status = StatusConnecting
	m.mu.Unlock()

	go m.connect(gen)
}

// Close tears the channel down permanently. Any pending reconnect timer
// is cancelled and the event stream is closed; nothing is emitted after
// Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.teardownLocked()
	m.target = uuid.Nil
	m.closed = true
	close(m.events)
}

// teardownLocked cancels the pending reconnect and closes the live
// socket, invalidating all goroutines of the current generation.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.conn != nil {
		m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		m.conn.Close()
		m.conn = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.state.Status = StatusClosed
}

func (m *Manager) battleURL(battleID uuid.UUID) string {
	return fmt.Sprintf("%s/api/ws/battle/%s", m.config.BaseURL, battleID)
}

// connect dials the target battle endpoint. Dial failure is treated like
// any other close: log and schedule one retry.
func (m *Manager) connect(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.target == uuid.Nil {
		m.mu.Unlock()
		return
	}
	battleID := m.target
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.HandshakeTimeout}
	conn, resp, err := dialer.Dial(m.battleURL(battleID), m.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		log.Warn().Err(err).Str("battle_id", battleID.String()).Msg("push channel dial failed")
		m.mu.Lock()
		if !m.closed && gen == m.gen {
			m.state.Status = StatusClosed
		}
		m.mu.Unlock()
		m.scheduleReconnect(gen)
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.done = make(chan struct{})
	done := m.done
	m.state.Status = StatusOpen
	m.mu.Unlock()

	log.Info().Str("battle_id", battleID.String()).Msg("push channel connected")

	go m.readPump(gen, conn)
	go m.heartbeat(conn, done)
}

// readPump consumes the socket until it dies. Unparseable and unknown
// payloads are dropped without killing the stream.
func (m *Manager) readPump(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}

		m.mu.Lock()
		if m.closed || gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.state.LastMessageAt = m.clock.Now()

		ev, ok := decodeEvent(data)
		if !ok {
			m.mu.Unlock()
			log.Debug().Str("payload", string(data)).Msg("dropping unrecognized push payload")
			continue
		}
		select {
		case m.events <- ev:
		default:
			log.Warn().Str("type", string(ev.Type)).Msg("push event buffer full, dropping event")
		}
		m.mu.Unlock()
	}
}

// heartbeat sends the application-level keep-alive ping. No pong is
// awaited; close/retry alone governs liveness. The done channel ends the
// goroutine the moment its connection is torn down, so no ping interval
// outlives a left battle.
func (m *Manager) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := m.clock.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(map[string]string{"type": "ping"})
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				// The read pump sees the same dead socket and handles retry.
				log.Debug().Err(err).Msg("keep-alive write failed")
				return
			}
		}
	}
}

// handleClose transitions to Closed and schedules exactly one reconnect
// attempt, provided the target still stands.
func (m *Manager) handleClose(gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.state.Status = StatusClosed
	m.mu.Unlock()

	log.Info().Err(cause).Msg("push channel closed, scheduling reconnect")
	m.scheduleReconnect(gen)
}

func (m *Manager) scheduleReconnect(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.target == uuid.Nil || m.reconnect != nil {
		return
	}
	m.reconnect = m.clock.AfterFunc(m.config.ReconnectDelay, func() {
		m.mu.Lock()
		m.reconnect = nil
		if m.closed || gen != m.gen || m.target == uuid.Nil {
			m.mu.Unlock()
			return
		}
		m.state.Status = StatusConnecting
		m.mu.Unlock()
		m.connect(gen)
	})
}
