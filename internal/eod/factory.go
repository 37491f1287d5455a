package eod

import (
	"context"
	"time"

	"krx-trader/internal/interfaces"
)

var defaultSummarizer interfaces.EodSummarizer = NewSummarizer()

// SetDefaultSummarizer swaps the package-level summarizer, for example for
// one wrapped by eodobs.
func SetDefaultSummarizer(summarizer interfaces.EodSummarizer) {
	defaultSummarizer = summarizer
}

func NewSummarizer() interfaces.EodSummarizer {
	return &eodSummarizer{now: time.Now}
}

func SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	return defaultSummarizer.SummarizeDay(ctx, t)
}

func SummarizeToday(ctx context.Context) (string, error) {
	return defaultSummarizer.SummarizeToday(ctx)
}

func ShouldRunNow() (bool, string) {
	return defaultSummarizer.ShouldRunNow()
}
