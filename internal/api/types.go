package api

import (
	"github.com/google/uuid"

	"github.com/rocketarena/client/internal/battle"
)

// Profile is the authenticated user's account state, fetched once at
// startup to seed balance, quota and cooldown.
type Profile struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	FirstName       string `json:"first_name"`
	Balance         int    `json:"balance"`
	IsVIP           bool   `json:"is_vip"`
	LimitRemaining  int    `json:"limit_remaining"`
	LimitMax        int    `json:"limit_max"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

// DisplayName prefers the handle over the first name, matching the
// backend's own ordering.
func (p Profile) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.FirstName
}

// Room is one joinable battle room.
type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	InviteCode  string    `json:"invite_code"`
	MaxPlayers  int       `json:"max_players"`
	PlayerCount int       `json:"player_count"`
	OwnerID     int64     `json:"owner_id"`
}

// RoomList is the response of the room browser listing.
type RoomList struct {
	Rooms []Room `json:"rooms"`
}

// BattleState is the join/get-battle payload: a full authoritative
// snapshot plus the battle's identity.
type BattleState struct {
	BattleID      *uuid.UUID           `json:"battle_id,omitempty"`
	Status        battle.Status        `json:"status"`
	CurrentRound  int                  `json:"current_round"`
	TotalRounds   int                  `json:"total_rounds"`
	Participants  []battle.Participant `json:"participants"`
	ActiveMatches []battle.Match       `json:"active_matches"`
}

// Snapshot converts the wire payload into the reconciler's model.
func (b BattleState) Snapshot() battle.Snapshot {
	return battle.Snapshot{
		Status:        b.Status,
		CurrentRound:  b.CurrentRound,
		TotalRounds:   b.TotalRounds,
		Participants:  b.Participants,
		ActiveMatches: b.ActiveMatches,
	}
}

// JoinRoomResponse is returned when entering a room by invite code. The
// battle fields are present once the room has a battle attached.
type JoinRoomResponse struct {
	Room         Room                 `json:"room"`
	BattleID     *uuid.UUID           `json:"battle_id,omitempty"`
	BattleStatus battle.Status        `json:"battle_status"`
	Participants []battle.Participant `json:"participants"`
	CurrentRound int                  `json:"current_round"`
	TotalRounds  int                  `json:"total_rounds"`
}

// FireRequest spends balance on the player's active match.
type FireRequest struct {
	BattleID uuid.UUID `json:"battle_id"`
	Amount   int       `json:"amount"`
	TargetID *int64    `json:"target_id,omitempty"`
}

// FireResponse carries the authoritative deltas of a successful fire.
// Pointer fields follow absent-means-unchanged semantics: a nil field
// must leave the corresponding local value untouched.
type FireResponse struct {
	NewBalance      int   `json:"new_balance"`
	CooldownStarted *bool `json:"cooldown_started,omitempty"`
	CooldownSeconds *int  `json:"cooldown_seconds,omitempty"`
	RemainingLimit  *int  `json:"remaining_limit,omitempty"`
	Player1Score    *int  `json:"player1_score,omitempty"`
	Player2Score    *int  `json:"player2_score,omitempty"`
}

// GiftRequest transfers balance to another player.
type GiftRequest struct {
	ToUsername string `json:"to_username"`
	Amount     int    `json:"amount"`
}

// GiftResponse reports the sender's balance after a transfer.
type GiftResponse struct {
	NewBalance int `json:"new_balance"`
}
