package push

import "encoding/json"

// EventType discriminates messages arriving on the battle channel.
type EventType string

const (
	EventRoundStarted   EventType = "round_started"
	EventBattleFinished EventType = "battle_finished"
	EventPlayerJoined   EventType = "player_joined"
	EventScoreUpdate    EventType = "score_update"
)

// RoundStartedPayload announces a new round and the single match the
// receiving client should track for it. Scores always start at zero.
type RoundStartedPayload struct {
	RoundNumber     int    `json:"round_number"`
	Player1ID       int64  `json:"player1_id"`
	Player2ID       int64  `json:"player2_id"`
	Player1Username string `json:"player1_username"`
	Player2Username string `json:"player2_username"`
	DurationSeconds int    `json:"duration_seconds"`
}

// ScorePayload carries live score overlays. Match-scoped scores arrive as
// player1/player2 fields; the simple two-team variant arrives untagged as
// blue/red team totals. Absent fields mean no update.
type ScorePayload struct {
	Player1Score *int `json:"player1_score,omitempty"`
	Player2Score *int `json:"player2_score,omitempty"`
	Blue         *int `json:"blue,omitempty"`
	Red          *int `json:"red,omitempty"`
}

// Event is one typed message delivered to the reconciler. Exactly one
// payload pointer is set, matching Type.
type Event struct {
	Type         EventType
	RoundStarted *RoundStartedPayload
	Score        *ScorePayload
}

// wireMessage is the superset of all inbound shapes. The live-score
// variant carries no type discriminator at all, so every recognized field
// is sniffed from a single decode.
type wireMessage struct {
	Type string `json:"type"`
	RoundStartedPayload
	ScorePayload
}

// decodeEvent maps a raw channel payload to a typed event. The second
// return is false for unparseable payloads and for message kinds this
// client does not recognize; both are dropped by the caller.
func decodeEvent(data []byte) (Event, bool) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{}, false
	}

	switch m.Type {
	case string(EventRoundStarted):
		p := m.RoundStartedPayload
		return Event{Type: EventRoundStarted, RoundStarted: &p}, true
	case string(EventBattleFinished):
		return Event{Type: EventBattleFinished}, true
	case string(EventPlayerJoined):
		return Event{Type: EventPlayerJoined}, true
	case string(EventScoreUpdate):
		p := m.ScorePayload
		return Event{Type: EventScoreUpdate, Score: &p}, true
	case "":
		// Untagged two-team score shape.
		if m.Blue != nil || m.Red != nil {
			p := m.ScorePayload
			return Event{Type: EventScoreUpdate, Score: &p}, true
		}
	}
	return Event{}, false
}
