// Package gate decides whether the monetized fire action is currently
// legal, executes it against the backend and reconciles local limits
// with the authoritative response.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rocketarena/client/internal/api"
	"github.com/rocketarena/client/internal/battle"
	"github.com/rocketarena/client/internal/timers"
)

// Precondition failures. Each is independently sufficient to reject a
// fire locally, before any network round trip.
var (
	ErrNoBattle            = errors.New("no battle joined")
	ErrBattleNotActive     = errors.New("battle is not active")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("amount exceeds balance")
	ErrQuotaExhausted      = errors.New("amount exceeds remaining daily limit")
	ErrCoolingDown         = errors.New("cooldown is still running")
)

// RateLimitError is a backend throttle on a fire. WaitSeconds is the
// residual wait recovered from the detail text, zero when the text
// carried no parseable numeral.
type RateLimitError struct {
	Detail      string
	WaitSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Detail)
}

// FireAPI is the slice of the REST client the gate needs.
type FireAPI interface {
	Fire(ctx context.Context, req api.FireRequest) (*api.FireResponse, error)
}

// BattleView is what the gate reads from (and forwards scores to) the
// reconciler. The reconciler's phase is the only battle-activity truth
// the gate consults.
type BattleView interface {
	BattleID() uuid.UUID
	Phase() battle.Status
	ApplyScores(player1Score, player2Score int)
}

// Limits is a read-only copy of the gate's spend state.
type Limits struct {
	Balance                  int
	CooldownSecondsRemaining int
	DailyQuotaRemaining      int
	DailyQuotaMax            int
}

// Outcome is the applied result of a successful fire.
type Outcome struct {
	Balance         int
	CooldownSeconds int
	QuotaRemaining  int
}

// Gate owns the spend limits. Balance and quota change only via Seed
// (initial profile fetch) or the authoritative response of a fire; no
// optimistic mutation ever happens.
type Gate struct {
	api     FireAPI
	battles BattleView

	mu          sync.Mutex
	balance     int
	quotaRemain int
	quotaMax    int
	cooldown    timers.Countdown
}

// New builds a gate over the given backend and battle view. Limits start
// at zero and deny everything until Seed is called.
func New(fireAPI FireAPI, battles BattleView) *Gate {
	return &Gate{api: fireAPI, battles: battles}
}

// Seed initializes the limits from the profile fetch.
func (g *Gate) Seed(p *api.Profile) {
	g.mu.Lock()
	g.balance = p.Balance
	g.quotaRemain = p.LimitRemaining
	g.quotaMax = p.LimitMax
	g.mu.Unlock()
	g.cooldown.Set(p.CooldownSeconds)
}

// Limits returns a copy of the current spend state.
func (g *Gate) Limits() Limits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Limits{
		Balance:                  g.balance,
		CooldownSecondsRemaining: g.cooldown.Remaining(),
		DailyQuotaRemaining:      g.quotaRemain,
		DailyQuotaMax:            g.quotaMax,
	}
}

// TickCooldown advances the cooldown countdown by one second. Driven by
// the session's shared tick.
func (g *Gate) TickCooldown() {
	g.cooldown.Tick()
}

// Check is the pure local precondition test: battle bound and active,
// amount within balance and daily quota, cooldown expired. It performs
// no I/O; a violation returns the matching sentinel immediately.
func (g *Gate) Check(amount int) error {
	if g.battles.BattleID() == uuid.Nil {
		return ErrNoBattle
	}
	if g.battles.Phase() != battle.StatusActive {
		return ErrBattleNotActive
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if amount > g.balance {
		return ErrInsufficientBalance
	}
	if amount > g.quotaRemain {
		return ErrQuotaExhausted
	}
	if g.cooldown.Active() {
		return ErrCoolingDown
	}
	return nil
}

// CanFire reports whether a fire of the given amount would pass the
// local gate right now.
func (g *Gate) CanFire(amount int) bool {
	return g.Check(amount) == nil
}

// Fire executes the action against the backend and applies the
// authoritative response. On rate limiting the cooldown is re-synced
// from the server's stated wait; on any other failure no local state
// changes. Suppressing concurrent fires is the caller's responsibility.
func (g *Gate) Fire(ctx context.Context, amount int) (*Outcome, error) {
	if err := g.Check(amount); err != nil {
		return nil, err
	}

	resp, err := g.api.Fire(ctx, api.FireRequest{
		BattleID: g.battles.BattleID(),
		Amount:   amount,
	})
	if err != nil {
		var se *api.StatusError
		if errors.As(err, &se) && se.RateLimited() {
			rle := &RateLimitError{Detail: se.Detail}
			if wait, ok := parseRetryAfter(se.Detail); ok {
				g.cooldown.Set(wait)
				rle.WaitSeconds = wait
			}
			log.Info().Int("wait_seconds", rle.WaitSeconds).Msg("fire rate limited")
			return nil, rle
		}
		// Nothing was debited locally, so nothing rolls back.
		return nil, fmt.Errorf("fire failed: %w", err)
	}

	g.mu.Lock()
	g.balance = resp.NewBalance
	if resp.RemainingLimit != nil {
		g.quotaRemain = *resp.RemainingLimit
	}
	out := &Outcome{Balance: g.balance, QuotaRemaining: g.quotaRemain}
	g.mu.Unlock()

	if resp.CooldownStarted != nil && *resp.CooldownStarted && resp.CooldownSeconds != nil {
		g.cooldown.Set(*resp.CooldownSeconds)
		out.CooldownSeconds = *resp.CooldownSeconds
	}
	if resp.Player1Score != nil && resp.Player2Score != nil {
		g.battles.ApplyScores(*resp.Player1Score, *resp.Player2Score)
	}

	log.Debug().
		Int("amount", amount).
		Int("balance", out.Balance).
		Int("cooldown_seconds", out.CooldownSeconds).
		Msg("fire applied")
	return out, nil
}

// ApplyBalance overwrites the balance from a non-fire authoritative
// source (gift transfer response).
func (g *Gate) ApplyBalance(balance int) {
	g.mu.Lock()
	g.balance = balance
	g.mu.Unlock()
}
