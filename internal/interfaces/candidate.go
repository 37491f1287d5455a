package interfaces

import (
	"context"

	"krx-trader/internal/types"
)

// CandidateSource reads today's advisory candidates. exclude holds symbols
// that must not be returned, normally the current holdings.
type CandidateSource interface {
	FetchToday(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error)
}

// LimitUpSource lists symbols that closed at the daily upper limit.
type LimitUpSource interface {
	FetchLimitUp(ctx context.Context, exclude map[string]struct{}) ([]types.Candidate, error)
}
