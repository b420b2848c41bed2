package battle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rocketarena/client/internal/push"
)

func intp(v int) *int { return &v }

func roundStarted(round int) push.Event {
	return push.Event{
		Type: push.EventRoundStarted,
		RoundStarted: &push.RoundStartedPayload{
			RoundNumber:     round,
			Player1ID:       101,
			Player2ID:       102,
			Player1Username: "alice",
			Player2Username: "bob",
			DurationSeconds: 45,
		},
	}
}

func sampleSnapshot(status Status, round int) Snapshot {
	return Snapshot{
		Status:       status,
		CurrentRound: round,
		TotalRounds:  4,
		Participants: []Participant{
			{UserID: 102, Username: "bob", BracketPosition: 2},
			{UserID: 101, Username: "alice", BracketPosition: 1, Score: 3},
		},
		ActiveMatches: []Match{
			{Player1ID: 101, Player2ID: 102, Player1Score: 3, DurationSeconds: 45},
		},
	}
}

func TestApplySnapshotRoundTrip(t *testing.T) {
	r := NewReconciler()
	snap := sampleSnapshot(StatusActive, 2)
	r.ApplySnapshot(snap)

	got := r.State()
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, 2, got.CurrentRound)
	require.Equal(t, 4, got.TotalRounds)
	require.Len(t, got.Participants, 2)
	require.Equal(t, snap.ActiveMatches, got.ActiveMatches)

	// Display order is by bracket position, not arrival order.
	require.Equal(t, int64(101), got.Participants[0].UserID)
	require.Equal(t, int64(102), got.Participants[1].UserID)
}

func TestPhaseIsMonotonic(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(sampleSnapshot(StatusActive, 1))
	require.Equal(t, StatusActive, r.Phase())

	// A stale Waiting snapshot cannot drag the phase backward.
	r.ApplySnapshot(sampleSnapshot(StatusWaiting, 1))
	require.Equal(t, StatusActive, r.Phase())

	r.ApplyEvent(push.Event{Type: push.EventBattleFinished})
	require.Equal(t, StatusFinished, r.Phase())

	r.ApplySnapshot(sampleSnapshot(StatusActive, 2))
	require.Equal(t, StatusFinished, r.Phase())
}

func TestFinishedIsTerminalForEvents(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(push.Event{Type: push.EventBattleFinished})

	refetch := r.ApplyEvent(roundStarted(2))
	require.False(t, refetch)
	require.Equal(t, StatusFinished, r.Phase())
	require.Empty(t, r.State().ActiveMatches)

	require.False(t, r.ApplyEvent(push.Event{Type: push.EventPlayerJoined}))
}

func TestRoundStartedReplacesMatchSet(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(sampleSnapshot(StatusActive, 1))

	r.ApplyEvent(roundStarted(2))

	got := r.State()
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, 2, got.CurrentRound)
	require.Len(t, got.ActiveMatches, 1)

	m := got.ActiveMatches[0]
	require.Equal(t, int64(101), m.Player1ID)
	require.Equal(t, int64(102), m.Player2ID)
	require.Zero(t, m.Player1Score)
	require.Zero(t, m.Player2Score)
	require.Equal(t, 45, m.DurationSeconds)
}

func TestRoundStartedFromWaiting(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(roundStarted(1))
	require.Equal(t, StatusActive, r.Phase())
	require.Equal(t, 1, r.State().CurrentRound)
}

func TestRoundStartedWinsOverStaleSnapshot(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(roundStarted(3))

	// A snapshot still reporting round 2 was in flight when the round
	// turned; its round and matches must not regress the event's.
	stale := sampleSnapshot(StatusActive, 2)
	r.ApplySnapshot(stale)

	got := r.State()
	require.Equal(t, 3, got.CurrentRound)
	require.Len(t, got.ActiveMatches, 1)
	require.Zero(t, got.ActiveMatches[0].Player1Score)
	// Roster still refreshes from the snapshot.
	require.Len(t, got.Participants, 2)

	// A snapshot that caught up replaces the match set wholesale.
	fresh := sampleSnapshot(StatusActive, 3)
	r.ApplySnapshot(fresh)
	require.Equal(t, fresh.ActiveMatches, r.State().ActiveMatches)
}

func TestPlayerJoinedOnlySignalsRefetch(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(sampleSnapshot(StatusWaiting, 0))
	before := r.State()

	refetch := r.ApplyEvent(push.Event{Type: push.EventPlayerJoined})
	require.True(t, refetch)
	require.Equal(t, before, r.State())
}

func TestScoreOverlay(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(roundStarted(1))

	r.ApplyEvent(push.Event{Type: push.EventScoreUpdate, Score: &push.ScorePayload{
		Player1Score: intp(4),
		Player2Score: intp(9),
	}})

	m := r.State().ActiveMatches[0]
	require.Equal(t, 4, m.Player1Score)
	require.Equal(t, 9, m.Player2Score)

	// Absent fields leave the previous score standing.
	r.ApplyEvent(push.Event{Type: push.EventScoreUpdate, Score: &push.ScorePayload{
		Player1Score: intp(6),
	}})
	m = r.State().ActiveMatches[0]
	require.Equal(t, 6, m.Player1Score)
	require.Equal(t, 9, m.Player2Score)
}

func TestScoreOverlayTwoTeamVariant(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(roundStarted(1))

	r.ApplyEvent(push.Event{Type: push.EventScoreUpdate, Score: &push.ScorePayload{
		Blue: intp(11),
		Red:  intp(8),
	}})

	m := r.State().ActiveMatches[0]
	require.Equal(t, 11, m.Player1Score)
	require.Equal(t, 8, m.Player2Score)
}

func TestScoreWithoutActiveMatchIsDiscarded(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(Snapshot{Status: StatusActive, CurrentRound: 1, TotalRounds: 4})

	r.ApplyEvent(push.Event{Type: push.EventScoreUpdate, Score: &push.ScorePayload{
		Player1Score: intp(4),
	}})
	require.Empty(t, r.State().ActiveMatches)
}

func TestApplyScoresFromFireResponse(t *testing.T) {
	r := NewReconciler()
	r.ApplyEvent(roundStarted(1))

	r.ApplyScores(2, 5)
	m := r.State().ActiveMatches[0]
	require.Equal(t, 2, m.Player1Score)
	require.Equal(t, 5, m.Player2Score)
}

func TestResetClearsEverything(t *testing.T) {
	r := NewReconciler()
	r.Bind(uuid.New())
	r.ApplyEvent(roundStarted(2))

	r.Reset()
	require.Equal(t, uuid.Nil, r.BattleID())
	require.Equal(t, StatusWaiting, r.Phase())
	require.Empty(t, r.State().ActiveMatches)

	// eventRound is cleared too: a fresh battle's snapshot applies fully.
	r.ApplySnapshot(sampleSnapshot(StatusActive, 1))
	require.Equal(t, 1, r.State().CurrentRound)
}

func TestUpdatesSignalAfterMutation(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(sampleSnapshot(StatusWaiting, 0))

	select {
	case <-r.Updates():
	default:
		t.Fatal("expected an update signal after ApplySnapshot")
	}
}
