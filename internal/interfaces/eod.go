package interfaces

import (
	"context"
	"time"
)

// EodSummarizer turns a day's trade journal into a CSV report.
type EodSummarizer interface {
	// SummarizeDay returns an empty path when nothing traded on t.
	SummarizeDay(ctx context.Context, t time.Time) (csvPath string, err error)
	SummarizeToday(ctx context.Context) (csvPath string, err error)
	// ShouldRunNow is true after the cutoff while today's report is missing.
	ShouldRunNow() (shouldRun bool, csvPath string)
}
