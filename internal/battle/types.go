package battle

// Status is the lifecycle phase of a battle. Transitions are one-way:
// Waiting -> Active -> Finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// phaseRank orders statuses for the monotonic-phase rule. Unknown values
// rank lowest so a garbage status can never push the machine forward.
func phaseRank(s Status) int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusActive:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

// Participant is one player in the bracket. Display ordering is by
// BracketPosition, never by slice index.
type Participant struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	Score           int    `json:"score"`
	BracketPosition int    `json:"bracket_position"`
	IsEliminated    bool   `json:"is_eliminated"`
	IsVIP           bool   `json:"is_vip"`
}

// Match is a single 1v1 pairing within the current round.
type Match struct {
	Player1ID       int64  `json:"player1_id"`
	Player2ID       int64  `json:"player2_id"`
	Player1Username string `json:"player1_username"`
	Player2Username string `json:"player2_username"`
	Player1Score    int    `json:"player1_score"`
	Player2Score    int    `json:"player2_score"`
	DurationSeconds int    `json:"duration_seconds"`
	WinnerID        *int64 `json:"winner_id,omitempty"`
	Status          string `json:"status"`
}

// Snapshot is the authoritative battle state as served by the backend.
// Only the current round's matches are carried; bracket history is not
// retained client-side.
type Snapshot struct {
	Status        Status        `json:"status"`
	CurrentRound  int           `json:"current_round"`
	TotalRounds   int           `json:"total_rounds"`
	Participants  []Participant `json:"participants"`
	ActiveMatches []Match       `json:"active_matches"`
}
