package eodobs

import (
	"context"
	"time"

	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	op := logger.StartOperation(ctx, "eod.SummarizeDay", "date", clock.Date(t))
	csvPath, err := oes.summarizer.SummarizeDay(op.Context(), t)
	oes.finish(op, csvPath, err)
	return csvPath, err
}

func (oes *observableEodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	op := logger.StartOperation(ctx, "eod.SummarizeToday", "date", clock.Today())
	csvPath, err := oes.summarizer.SummarizeToday(op.Context())
	oes.finish(op, csvPath, err)
	return csvPath, err
}

func (oes *observableEodSummarizer) finish(op *logger.OperationTimer, csvPath string, err error) {
	switch {
	case err != nil:
		op.EndWithError(err)
	case csvPath == "":
		op.End("trades", 0)
	default:
		op.End("csv_path", csvPath)
	}
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	shouldRun, csvPath := oes.summarizer.ShouldRunNow()
	logger.DebugSkip(context.Background(), 1, "EOD check completed",
		"should_run", shouldRun,
		"csv_path", csvPath,
	)
	return shouldRun, csvPath
}
