package state

import "time"

// MinuteWindow is the length of the short consumption window.
//
// The minute window is anchored to its last rollover, not to a wall-clock
// grid: every rollover sets the next reset to rollover-time + 60s.
const MinuteWindow = time.Minute

// QuotaState is the mutable consumption record for the currently selected
// model. There is exactly one live instance per process; it is persisted
// across restarts and mutated only by the tracker.
//
// Counters increase monotonically within a window and drop to zero at the
// window's rollover. The two windows roll over independently.
type QuotaState struct {
	// ModelID is the model whose limit entry governs admission checks.
	// Switching models does not touch the counters.
	ModelID string `json:"model_id"`

	// TokensThisMinute is the token consumption in the current minute window.
	TokensThisMinute int64 `json:"tokens_this_minute"`

	// TokensToday is the token consumption in the current day window.
	TokensToday int64 `json:"tokens_today"`

	// RequestsThisMinute is the request count in the current minute window.
	RequestsThisMinute int64 `json:"requests_this_minute"`

	// RequestsToday is the request count in the current day window.
	RequestsToday int64 `json:"requests_today"`

	// MinuteResetAt is the instant the minute window rolls over.
	MinuteResetAt time.Time `json:"minute_reset_at"`

	// DayResetAt is the next local midnight.
	DayResetAt time.Time `json:"day_reset_at"`
}

// New creates a fresh zeroed state anchored at now.
func New(modelID string, now time.Time) *QuotaState {
	return &QuotaState{
		ModelID:       modelID,
		MinuteResetAt: now.Add(MinuteWindow),
		DayResetAt:    NextLocalMidnight(now),
	}
}

// Reconcile detects elapsed windows and resets them in place.
//
// The minute and day checks are independent: a day rollover leaves the
// minute counters untouched and vice versa. Reconcile is safe to call
// after an arbitrary pause; it always self-corrects rather than failing,
// so a state reloaded hours later ends up with live windows.
func (s *QuotaState) Reconcile(now time.Time) (minuteRolled, dayRolled bool) {
	if !now.Before(s.MinuteResetAt) {
		s.TokensThisMinute = 0
		s.RequestsThisMinute = 0
		s.MinuteResetAt = now.Add(MinuteWindow)
		minuteRolled = true
	}

	if !now.Before(s.DayResetAt) {
		s.TokensToday = 0
		s.RequestsToday = 0
		s.DayResetAt = NextLocalMidnight(now)
		dayRolled = true
	}

	return minuteRolled, dayRolled
}

// AddUsage adds consumed tokens and completed requests to both windows.
// Consumption is monotonic within a window; negative deltas are ignored.
func (s *QuotaState) AddUsage(tokens, requests int64) {
	if tokens > 0 {
		s.TokensThisMinute += tokens
		s.TokensToday += tokens
	}
	if requests > 0 {
		s.RequestsThisMinute += requests
		s.RequestsToday += requests
	}
}

// Live reports whether both reset timestamps are set and in the future
// relative to now. A state loaded from storage that is not live must be
// reconciled (or reinitialized) before its counters are trusted.
func (s *QuotaState) Live(now time.Time) bool {
	return !s.MinuteResetAt.IsZero() && !s.DayResetAt.IsZero() &&
		now.Before(s.MinuteResetAt) && now.Before(s.DayResetAt)
}

// Clone returns a copy of the state for snapshot-consistent reads.
func (s *QuotaState) Clone() *QuotaState {
	c := *s
	return &c
}

// NextLocalMidnight returns the first midnight after now in now's location.
// The day window is a wall-clock day boundary, not 24h from the last
// rollover, so a rollover at 23:59 yields a reset one minute later.
func NextLocalMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
