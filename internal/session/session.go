// Package session wires the REST client, push channel, reconciler, gate
// and countdowns into one client-side battle runtime. All state mutation
// reacts to one of three triggers serialized by the Run loop: a push
// event, a REST response, or the shared one-second tick.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/rocketarena/client/internal/api"
	"github.com/rocketarena/client/internal/battle"
	"github.com/rocketarena/client/internal/gate"
	"github.com/rocketarena/client/internal/push"
	"github.com/rocketarena/client/internal/timers"
)

// ErrFireInFlight rejects a fire while a previous one still awaits its
// response. At most one fire per user intent is meaningful.
var ErrFireInFlight = errors.New("a fire is already in flight")

// defaultRoundSeconds is used when a round carries no duration.
const defaultRoundSeconds = 60

// Backend is the slice of the REST client the session consumes.
type Backend interface {
	GetProfile(ctx context.Context) (*api.Profile, error)
	ListRooms(ctx context.Context) ([]api.Room, error)
	CreateRoom(ctx context.Context, name string) (*api.Room, error)
	JoinRoom(ctx context.Context, inviteCode string) (*api.JoinRoomResponse, error)
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
	GetBattle(ctx context.Context, battleID uuid.UUID) (*api.BattleState, error)
	Fire(ctx context.Context, req api.FireRequest) (*api.FireResponse, error)
	SendGift(ctx context.Context, req api.GiftRequest) (*api.GiftResponse, error)
}

// Identity is who the session is running as, from the profile fetch.
type Identity struct {
	UserID   int64
	Username string
	IsVIP    bool
}

// Session is one client instance tracking at most one live battle.
type Session struct {
	backend Backend
	push    *push.Manager
	battles *battle.Reconciler
	gate    *gate.Gate
	clock   clockwork.Clock

	roundClock timers.Countdown
	firing     atomic.Bool

	mu   sync.Mutex
	user Identity
	room *api.Room
}

// New wires a session over the given backend and push manager. The gate
// shares the session's reconciler as its battle view.
func New(backend Backend, pushMgr *push.Manager, clock clockwork.Clock) *Session {
	battles := battle.NewReconciler()
	return &Session{
		backend: backend,
		push:    pushMgr,
		battles: battles,
		gate:    gate.New(backend, battles),
		clock:   clock,
	}
}

// Start fetches the profile and seeds identity and spend limits. Called
// once before Run.
func (s *Session) Start(ctx context.Context) error {
	profile, err := s.backend.GetProfile(ctx)
	if err != nil {
		return err
	}
	s.gate.Seed(profile)

	s.mu.Lock()
	s.user = Identity{
		UserID:   profile.UserID,
		Username: profile.DisplayName(),
		IsVIP:    profile.IsVIP,
	}
	s.mu.Unlock()

	log.Info().Int64("user_id", profile.UserID).Int("balance", profile.Balance).
		Msg("session started")
	return nil
}

// Run drives the session until the context ends: push events feed the
// reconciler, the one-second tick feeds the countdowns. Push and REST
// failures never escalate out of this loop.
func (s *Session) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	events := s.push.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.Chan():
			s.roundClock.Tick()
			s.gate.TickCooldown()

		case ev, ok := <-events:
			if !ok {
				// Push manager closed; keep ticking for the countdowns.
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev push.Event) {
	if ev.Type == push.EventRoundStarted {
		s.battles.ApplyEvent(ev)
		// A late round event on a finished battle is ignored by the
		// reconciler; the round clock must not restart either.
		if s.battles.Phase() == battle.StatusActive {
			seconds := ev.RoundStarted.DurationSeconds
			if seconds <= 0 {
				seconds = defaultRoundSeconds
			}
			s.roundClock.Set(seconds)
		}
		return
	}

	if ev.Type == push.EventBattleFinished {
		s.battles.ApplyEvent(ev)
		s.roundClock.Set(0)
		return
	}

	if s.battles.ApplyEvent(ev) {
		// Fire-and-forget refetch; a failure leaves the prior state
		// standing, which is stale but not incorrect.
		go func() {
			if err := s.refreshBattle(ctx); err != nil {
				log.Warn().Err(err).Msg("battle refetch failed")
			}
		}()
	}
}

// refreshBattle re-fetches and applies the authoritative snapshot.
func (s *Session) refreshBattle(ctx context.Context) error {
	battleID := s.battles.BattleID()
	if battleID == uuid.Nil {
		return nil
	}
	state, err := s.backend.GetBattle(ctx, battleID)
	if err != nil {
		return err
	}
	s.applySnapshot(state.Snapshot())
	return nil
}

// applySnapshot feeds a snapshot through the reconciler and, when the
// battle is running with an idle round clock, restarts the clock from
// the active match duration.
func (s *Session) applySnapshot(snap battle.Snapshot) {
	s.battles.ApplySnapshot(snap)

	current := s.battles.State()
	if current.Status == battle.StatusActive && !s.roundClock.Active() {
		seconds := defaultRoundSeconds
		if len(current.ActiveMatches) > 0 && current.ActiveMatches[0].DurationSeconds > 0 {
			seconds = current.ActiveMatches[0].DurationSeconds
		}
		s.roundClock.Set(seconds)
	}
}

// ListRooms returns the joinable rooms.
func (s *Session) ListRooms(ctx context.Context) ([]api.Room, error) {
	return s.backend.ListRooms(ctx)
}

// CreateRoom opens a new room owned by this user.
func (s *Session) CreateRoom(ctx context.Context, name string) (*api.Room, error) {
	return s.backend.CreateRoom(ctx, name)
}

// DeleteRoom removes a room this user owns.
func (s *Session) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	return s.backend.DeleteRoom(ctx, roomID)
}

// JoinRoom enters a room by invite code, applies any attached battle
// state and points the push channel at the battle.
func (s *Session) JoinRoom(ctx context.Context, inviteCode string) (*api.JoinRoomResponse, error) {
	resp, err := s.backend.JoinRoom(ctx, inviteCode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	room := resp.Room
	s.room = &room
	s.mu.Unlock()

	if resp.BattleID != nil {
		if *resp.BattleID != s.battles.BattleID() {
			// A different battle runs its own phase machine; the
			// monotonic guards of the previous one must not carry over.
			s.battles.Reset()
			s.roundClock.Set(0)
		}
		s.battles.Bind(*resp.BattleID)
		status := resp.BattleStatus
		if status == "" {
			status = battle.StatusWaiting
		}
		s.applySnapshot(battle.Snapshot{
			Status:       status,
			CurrentRound: resp.CurrentRound,
			TotalRounds:  resp.TotalRounds,
			Participants: resp.Participants,
		})
		s.push.SetTarget(*resp.BattleID)
	}

	log.Info().Str("invite_code", inviteCode).Msg("joined room")
	return resp, nil
}

// LeaveRoom tears down the battle channel and clears battle state. The
// push manager cancels any pending reconnect as part of retargeting.
func (s *Session) LeaveRoom() {
	s.push.SetTarget(uuid.Nil)
	s.battles.Reset()
	s.roundClock.Set(0)

	s.mu.Lock()
	s.room = nil
	s.mu.Unlock()
}

// Fire spends balance on the active match. Concurrent fires are
// suppressed here; the gate itself is stateless per call.
func (s *Session) Fire(ctx context.Context, amount int) (*gate.Outcome, error) {
	if !s.firing.CompareAndSwap(false, true) {
		return nil, ErrFireInFlight
	}
	defer s.firing.Store(false)
	return s.gate.Fire(ctx, amount)
}

// CanFire reports whether a fire would pass the local gate right now.
func (s *Session) CanFire(amount int) bool {
	return s.gate.CanFire(amount)
}

// SendGift transfers balance to another player and applies the
// authoritative new balance.
func (s *Session) SendGift(ctx context.Context, toUsername string, amount int) error {
	resp, err := s.backend.SendGift(ctx, api.GiftRequest{ToUsername: toUsername, Amount: amount})
	if err != nil {
		return err
	}
	s.gate.ApplyBalance(resp.NewBalance)
	return nil
}

// User returns the session identity.
func (s *Session) User() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Room returns the joined room, or nil.
func (s *Session) Room() *api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

// Battle returns a copy of the reconciled battle state.
func (s *Session) Battle() battle.Snapshot { return s.battles.State() }

// Limits returns a copy of the gate's spend state.
func (s *Session) Limits() gate.Limits { return s.gate.Limits() }

// Connection returns the push channel state.
func (s *Session) Connection() push.ConnectionState { return s.push.State() }

// RoundTimeLeft returns the seconds left on the round clock.
func (s *Session) RoundTimeLeft() int { return s.roundClock.Remaining() }

// Updates signals whenever the battle state changes.
func (s *Session) Updates() <-chan struct{} { return s.battles.Updates() }

// Close shuts the push channel down for good.
func (s *Session) Close() { s.push.Close() }
