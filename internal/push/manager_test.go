package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// battleServer is a websocket endpoint that hands accepted connections
// to the test and counts dials.
type battleServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	dials atomic.Int32
	paths chan string
}

func newBattleServer(t *testing.T) *battleServer {
	t.Helper()
	bs := &battleServer{
		conns: make(chan *websocket.Conn, 8),
		paths: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	bs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.dials.Add(1)
		select {
		case bs.paths <- r.URL.Path:
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bs.conns <- conn
	}))
	t.Cleanup(bs.srv.Close)
	return bs
}

func (bs *battleServer) wsURL() string {
	return "ws" + strings.TrimPrefix(bs.srv.URL, "http")
}

func (bs *battleServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-bs.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a websocket connection")
		return nil
	}
}

func newTestManager(t *testing.T, bs *battleServer, clock clockwork.Clock) *Manager {
	t.Helper()
	m := NewManager(DefaultConfig(bs.wsURL()), clock)
	t.Cleanup(m.Close)
	return m
}

func receiveEvent(t *testing.T, m *Manager) Event {
	t.Helper()
	select {
	case ev, ok := <-m.Events():
		require.True(t, ok, "event stream closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a push event")
		return Event{}
	}
}

func TestConnectDeliversTypedEvents(t *testing.T) {
	bs := newBattleServer(t)
	m := newTestManager(t, bs, clockwork.NewFakeClock())

	battleID := uuid.New()
	m.SetTarget(battleID)
	conn := bs.accept(t)

	require.Equal(t, "/api/ws/battle/"+battleID.String(), <-bs.paths)
	require.Eventually(t, func() bool {
		return m.State().Status == StatusOpen
	}, 5*time.Second, 10*time.Millisecond)

	payload := `{"type":"round_started","round_number":2,"player1_id":101,"player2_id":102,` +
		`"player1_username":"alice","player2_username":"bob","duration_seconds":45}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	ev := receiveEvent(t, m)
	require.Equal(t, EventRoundStarted, ev.Type)
	require.Equal(t, 2, ev.RoundStarted.RoundNumber)
	require.Equal(t, int64(101), ev.RoundStarted.Player1ID)
	require.Equal(t, 45, ev.RoundStarted.DurationSeconds)

	require.NotZero(t, m.State().LastMessageAt)
}

func TestMalformedPayloadIsDroppedStreamSurvives(t *testing.T) {
	bs := newBattleServer(t)
	m := newTestManager(t, bs, clockwork.NewFakeClock())

	m.SetTarget(uuid.New())
	conn := bs.accept(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{{{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"some_future_kind"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"battle_finished"}`)))

	// Only the recognized message comes through, in order.
	ev := receiveEvent(t, m)
	require.Equal(t, EventBattleFinished, ev.Type)
}

func TestUntaggedScoreShapeIsRecognized(t *testing.T) {
	bs := newBattleServer(t)
	m := newTestManager(t, bs, clockwork.NewFakeClock())

	m.SetTarget(uuid.New())
	conn := bs.accept(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"blue":11,"red":8}`)))

	ev := receiveEvent(t, m)
	require.Equal(t, EventScoreUpdate, ev.Type)
	require.Equal(t, 11, *ev.Score.Blue)
	require.Equal(t, 8, *ev.Score.Red)
}

func TestReconnectAfterServerClose(t *testing.T) {
	bs := newBattleServer(t)
	clock := clockwork.NewFakeClock()
	m := newTestManager(t, bs, clock)

	m.SetTarget(uuid.New())
	conn := bs.accept(t)
	conn.Close()

	require.Eventually(t, func() bool {
		return m.State().Status == StatusClosed
	}, 5*time.Second, 10*time.Millisecond)

	// Advancing past the fixed 3s delay triggers exactly one redial.
	require.Eventually(t, func() bool {
		clock.Advance(3 * time.Second)
		return bs.dials.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	conn2 := bs.accept(t)
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, []byte(`{"type":"player_joined"}`)))
	require.Equal(t, EventPlayerJoined, receiveEvent(t, m).Type)
}

func TestHeartbeatSendsJSONPing(t *testing.T) {
	bs := newBattleServer(t)
	clock := clockwork.NewFakeClock()
	m := newTestManager(t, bs, clock)

	m.SetTarget(uuid.New())
	conn := bs.accept(t)

	pings := make(chan string, 4)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pings <- string(data)
		}
	}()

	require.Eventually(t, func() bool {
		clock.Advance(25 * time.Second)
		select {
		case msg := <-pings:
			require.JSONEq(t, `{"type":"ping"}`, msg)
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDialFailureClosesBeforeRetry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(DefaultConfig("ws://127.0.0.1:1"), clock)
	t.Cleanup(m.Close)

	m.SetTarget(uuid.New())

	// The failed attempt must land on Closed for the whole retry wait,
	// not linger on Connecting.
	require.Eventually(t, func() bool {
		return m.State().Status == StatusClosed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHeartbeatStopsImmediatelyOnClose(t *testing.T) {
	bs := newBattleServer(t)
	clock := clockwork.NewFakeClock()
	m := newTestManager(t, bs, clock)

	m.SetTarget(uuid.New())
	conn := bs.accept(t)

	pings := make(chan string, 4)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pings <- string(data)
		}
	}()

	m.Close()

	clock.Advance(25 * time.Second)
	time.Sleep(100 * time.Millisecond)
	select {
	case msg := <-pings:
		t.Fatalf("received %q after teardown", msg)
	default:
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	bs := newBattleServer(t)
	clock := clockwork.NewFakeClock()
	m := newTestManager(t, bs, clock)

	m.SetTarget(uuid.New())
	conn := bs.accept(t)
	conn.Close()

	require.Eventually(t, func() bool {
		return m.State().Status == StatusClosed
	}, 5*time.Second, 10*time.Millisecond)

	m.Close()

	// The event stream ends with teardown and never emits again.
	_, ok := <-m.Events()
	require.False(t, ok)

	// A reconnect that was pending at Close must never fire.
	dialsBefore := bs.dials.Load()
	clock.Advance(10 * time.Second)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, dialsBefore, bs.dials.Load())
}

func TestClearTargetStopsReconnect(t *testing.T) {
	bs := newBattleServer(t)
	clock := clockwork.NewFakeClock()
	m := newTestManager(t, bs, clock)

	m.SetTarget(uuid.New())
	conn := bs.accept(t)
	conn.Close()

	require.Eventually(t, func() bool {
		return m.State().Status == StatusClosed
	}, 5*time.Second, 10*time.Millisecond)

	m.SetTarget(uuid.Nil)

	dialsBefore := bs.dials.Load()
	clock.Advance(10 * time.Second)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, dialsBefore, bs.dials.Load())
	require.Equal(t, StatusClosed, m.State().Status)
}

func TestSetTargetSameIDIsNoop(t *testing.T) {
	bs := newBattleServer(t)
	m := newTestManager(t, bs, clockwork.NewFakeClock())

	battleID := uuid.New()
	m.SetTarget(battleID)
	bs.accept(t)

	m.SetTarget(battleID)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), bs.dials.Load())
}

func TestRetargetSwitchesBattles(t *testing.T) {
	bs := newBattleServer(t)
	m := newTestManager(t, bs, clockwork.NewFakeClock())

	first := uuid.New()
	second := uuid.New()

	m.SetTarget(first)
	bs.accept(t)
	require.Equal(t, "/api/ws/battle/"+first.String(), <-bs.paths)

	m.SetTarget(second)
	bs.accept(t)
	require.Equal(t, "/api/ws/battle/"+second.String(), <-bs.paths)
}
