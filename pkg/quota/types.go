package quota

import (
	"time"

	"mercator-hq/ganymede/pkg/quota/catalog"
)

// Dimension identifies one of the four limited counters.
type Dimension string

const (
	// DimensionRequestsPerMinute is the request count in the minute window.
	DimensionRequestsPerMinute Dimension = "requests_per_minute"

	// DimensionRequestsPerDay is the request count in the day window.
	DimensionRequestsPerDay Dimension = "requests_per_day"

	// DimensionTokensPerMinute is the token count in the minute window.
	DimensionTokensPerMinute Dimension = "tokens_per_minute"

	// DimensionTokensPerDay is the token count in the day window.
	DimensionTokensPerDay Dimension = "tokens_per_day"
)

// TokenUsage is the per-request usage triple reported by the caller after
// a completed remote operation.
type TokenUsage struct {
	// PromptTokens is the token count of the prompt.
	PromptTokens int64

	// CompletionTokens is the token count of the completion.
	CompletionTokens int64

	// TotalTokens is the total charged against the quota. If zero it is
	// derived as PromptTokens + CompletionTokens.
	TotalTokens int64
}

// Total returns the token count charged against the quota.
func (u TokenUsage) Total() int64 {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Percentages holds per-dimension usage as a fraction of the ceiling
// (0.0-1.0, may exceed 1.0 when a ceiling is breached).
type Percentages struct {
	RequestsPerMinute float64
	RequestsPerDay    float64
	TokensPerMinute   float64
	TokensPerDay      float64
}

// Snapshot is a read-only view of the quota state plus derived values,
// delivered to subscribers after every change.
type Snapshot struct {
	// ModelID is the currently selected model.
	ModelID string

	// TokensThisMinute is the token consumption in the minute window.
	TokensThisMinute int64

	// TokensToday is the token consumption in the day window.
	TokensToday int64

	// RequestsThisMinute is the request count in the minute window.
	RequestsThisMinute int64

	// RequestsToday is the request count in the day window.
	RequestsToday int64

	// MinuteResetAt is when the minute window rolls over.
	MinuteResetAt time.Time

	// DayResetAt is when the day window rolls over (next local midnight).
	DayResetAt time.Time

	// Limits is the entry governing this snapshot's model.
	Limits catalog.LimitEntry

	// Percent is per-dimension usage relative to Limits.
	Percent Percentages

	// OverLimit is true when any dimension has reached its ceiling.
	OverLimit bool

	// SecondsUntilCapacity is the wait heuristic: the smaller of the two
	// window remainders, rounded up, floored at zero.
	SecondsUntilCapacity int64

	// Taken is when the snapshot was built.
	Taken time.Time
}
