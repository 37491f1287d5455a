// Package scheduler fires daily jobs at KST wall clock times.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"krx-trader/internal/clock"
	"krx-trader/internal/interfaces"
	"krx-trader/internal/logger"
	"krx-trader/internal/notify"
)

const (
	DefaultTick      = 15 * time.Second
	DefaultHeartbeat = 30 * time.Minute
)

// Job runs once per matching day at At ("HH:MM", KST).
type Job struct {
	Name string
	At   string
	// Weekdays limits the days the job fires on. Empty means Monday to
	// Friday.
	Weekdays []time.Weekday
	Run      func(ctx context.Context) error
}

type entry struct {
	job          Job
	hour, minute int
	lastDate     string
}

func (e *entry) due(now time.Time, grace time.Duration) bool {
	if e.lastDate == clock.Date(now) || !e.onDay(now) {
		return false
	}
	at := clock.At(now, e.hour, e.minute)
	return !now.Before(at) && now.Before(at.Add(grace))
}

func (e *entry) onDay(now time.Time) bool {
	if len(e.job.Weekdays) == 0 {
		return clock.IsWeekday(now)
	}
	wd := now.In(clock.KST).Weekday()
	for _, d := range e.job.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

type Options struct {
	// Tick is the polling interval. Jobs fire within one tick of their time.
	Tick      time.Duration
	Heartbeat time.Duration
	// Notifier receives job failure reports. Defaults to notify.Nop.
	Notifier interfaces.Notifier
	Now      func() time.Time
}

// Scheduler runs registered jobs in the order they were added. A job whose
// time passed more than two ticks ago, for example while the process was
// down, is skipped until the next day.
type Scheduler struct {
	opts Options

	mu       sync.Mutex
	entries  []*entry
	lastBeat time.Time
}

func New(opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	return &Scheduler{opts: opts}
}

func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s: no run func", job.Name)
	}
	h, m, err := clock.ParseHHMM(job.At)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{job: job, hour: h, minute: m})
	return nil
}

// Run polls until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "Scheduler started", "jobs", s.jobNames(), "tick", s.opts.Tick.String())
	t := time.NewTicker(s.opts.Tick)
	defer t.Stop()

	s.RunPending(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler stopped")
			return ctx.Err()
		case <-t.C:
			s.RunPending(ctx)
		}
	}
}

// RunPending fires every job that is due now and logs a heartbeat when one
// is owed.
func (s *Scheduler) RunPending(ctx context.Context) {
	now := s.opts.Now()
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.due(now, 2*s.opts.Tick) {
			e.lastDate = clock.Date(now)
			due = append(due, e)
		}
	}
	beat := now.Sub(s.lastBeat) >= s.opts.Heartbeat
	if beat {
		s.lastBeat = now
	}
	s.mu.Unlock()

	if beat {
		logger.Info(ctx, "Scheduler heartbeat", "time", now.Format("15:04"))
	}
	for _, e := range due {
		s.runJob(ctx, e.job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	op := logger.StartOperation(ctx, "scheduler.job", "job", job.Name)
	err := safeRun(op.Context(), job)
	if err != nil {
		op.EndWithError(err)
		notify.Best(ctx, s.opts.Notifier, notify.Crash(job.Name, err))
		return
	}
	op.End()
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) jobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.job.Name+"@"+e.job.At)
	}
	return out
}
