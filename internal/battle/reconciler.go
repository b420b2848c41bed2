package battle

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rocketarena/client/internal/push"
)

// Reconciler owns the in-memory battle state. It merges authoritative
// REST snapshots with incremental push events into one consistent view.
// The phase is monotonic: Waiting -> Active -> Finished, never backward,
// regardless of the order snapshots and events interleave in.
type Reconciler struct {
	mu       sync.RWMutex
	battleID uuid.UUID
	snap     Snapshot

	// eventRound is the highest round announced on the push channel.
	// Round transitions on the channel outrank polled snapshots, so a
	// snapshot may never drag the round below this.
	eventRound int

	updates chan struct{}
}

// NewReconciler returns an empty reconciler in the Waiting phase.
func NewReconciler() *Reconciler {
	return &Reconciler{
		snap:    Snapshot{Status: StatusWaiting},
		updates: make(chan struct{}, 1),
	}
}

// Bind associates the reconciler with a battle. Called on join, before
// the first snapshot arrives.
func (r *Reconciler) Bind(battleID uuid.UUID) {
	r.mu.Lock()
	r.battleID = battleID
	r.mu.Unlock()
	r.notify()
}

// BattleID returns the bound battle id, or uuid.Nil when no battle is
// joined.
func (r *Reconciler) BattleID() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battleID
}

// Phase returns the current battle status. This is the single source of
// truth for battle phase; no peer component infers it independently.
func (r *Reconciler) Phase() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Status
}

// Updates signals after every state mutation. The channel has a buffer
// of one; coalesced notifications are fine since observers re-read the
// full state.
func (r *Reconciler) Updates() <-chan struct{} { return r.updates }

// State returns a deep copy of the working snapshot, participants sorted
// by bracket position for display.
func (r *Reconciler) State() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.snap
	out.Participants = make([]Participant, len(r.snap.Participants))
	copy(out.Participants, r.snap.Participants)
	out.ActiveMatches = make([]Match, len(r.snap.ActiveMatches))
	copy(out.ActiveMatches, r.snap.ActiveMatches)

	sort.SliceStable(out.Participants, func(i, j int) bool {
		return out.Participants[i].BracketPosition < out.Participants[j].BracketPosition
	})
	return out
}

// ApplySnapshot replaces the working state with a freshly fetched
// authoritative snapshot. Two guards keep the merged view consistent
// against stale polls: the phase never regresses, and the round never
// drops below one announced by a push event.
func (r *Reconciler) ApplySnapshot(s Snapshot) {
	r.mu.Lock()

	if phaseRank(s.Status) < phaseRank(r.snap.Status) {
		s.Status = r.snap.Status
	}
	if s.CurrentRound < r.eventRound {
		s.CurrentRound = r.snap.CurrentRound
		s.ActiveMatches = r.snap.ActiveMatches
	}
	r.snap = s

	r.mu.Unlock()
	r.notify()
}

// ApplyEvent folds one push event into the state. The returned flag asks
// the caller to refetch the snapshot; the reconciler itself never does
// I/O. Events are idempotent triggers: replaying one yields the same
// state.
func (r *Reconciler) ApplyEvent(ev push.Event) (refetch bool) {
	r.mu.Lock()

	if r.snap.Status == StatusFinished {
		// Terminal; late events no longer mutate anything.
		r.mu.Unlock()
		return false
	}

	switch ev.Type {
	case push.EventRoundStarted:
		p := ev.RoundStarted
		r.snap.CurrentRound = p.RoundNumber
		r.eventRound = p.RoundNumber
		r.snap.ActiveMatches = []Match{{
			Player1ID:       p.Player1ID,
			Player2ID:       p.Player2ID,
			Player1Username: p.Player1Username,
			Player2Username: p.Player2Username,
			DurationSeconds: p.DurationSeconds,
			Status:          "active",
		}}
		r.snap.Status = StatusActive

	case push.EventBattleFinished:
		r.snap.Status = StatusFinished

	case push.EventPlayerJoined:
		// A signal, not a delta: the roster is only knowable from a
		// fresh snapshot.
		r.mu.Unlock()
		return true

	case push.EventScoreUpdate:
		r.overlayScoresLocked(ev.Score)

	default:
		r.mu.Unlock()
		return false
	}

	r.mu.Unlock()
	r.notify()
	return false
}

// overlayScoresLocked paints live scores onto the current active match
// set. Scores are display deltas for matches that already exist; with no
// active match to receive them they are discarded.
func (r *Reconciler) overlayScoresLocked(s *push.ScorePayload) {
	if s == nil || len(r.snap.ActiveMatches) == 0 {
		log.Debug().Msg("discarding score update with no active match")
		return
	}
	for i := range r.snap.ActiveMatches {
		m := &r.snap.ActiveMatches[i]
		// The two-team variant maps blue/red onto the player slots.
		if v := firstSet(s.Player1Score, s.Blue); v != nil {
			m.Player1Score = *v
		}
		if v := firstSet(s.Player2Score, s.Red); v != nil {
			m.Player2Score = *v
		}
	}
}

func firstSet(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// ApplyScores overlays the authoritative match scores carried by a fire
// response onto the active match set.
func (r *Reconciler) ApplyScores(player1Score, player2Score int) {
	r.mu.Lock()
	r.overlayScoresLocked(&push.ScorePayload{
		Player1Score: &player1Score,
		Player2Score: &player2Score,
	})
	r.mu.Unlock()
	r.notify()
}

// Reset clears the reconciler when the user leaves the battle.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.battleID = uuid.Nil
	r.snap = Snapshot{Status: StatusWaiting}
	r.eventRound = 0
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}
