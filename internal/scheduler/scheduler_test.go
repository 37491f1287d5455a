package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/clock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(ctx context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

// 2026-10-16 is a Friday.
func kst(day, hour, minute int) time.Time {
	return time.Date(2026, 10, day, hour, minute, 0, 0, clock.KST)
}

func TestJobFiresOncePerDay(t *testing.T) {
	fc := &fakeClock{now: kst(16, 9, 0)}
	s := New(Options{Tick: 15 * time.Second, Now: fc.Now})
	runs := 0
	require.NoError(t, s.Add(Job{Name: "start", At: "09:01", Run: func(ctx context.Context) error {
		runs++
		return nil
	}}))
	ctx := context.Background()

	s.RunPending(ctx)
	assert.Equal(t, 0, runs, "not yet due")

	fc.Set(kst(16, 9, 1).Add(5 * time.Second))
	s.RunPending(ctx)
	s.RunPending(ctx)
	assert.Equal(t, 1, runs)

	// the next trading day is Monday the 19th
	fc.Set(kst(17, 9, 1))
	s.RunPending(ctx)
	assert.Equal(t, 1, runs, "saturday skipped")
	fc.Set(kst(19, 9, 1))
	s.RunPending(ctx)
	assert.Equal(t, 2, runs)
}

func TestMissedJobIsNotReplayed(t *testing.T) {
	fc := &fakeClock{now: kst(16, 12, 0)}
	s := New(Options{Tick: 15 * time.Second, Now: fc.Now})
	ran := false
	require.NoError(t, s.Add(Job{Name: "start", At: "09:01", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}}))
	s.RunPending(context.Background())
	assert.False(t, ran)
}

func TestExplicitWeekdays(t *testing.T) {
	fc := &fakeClock{now: kst(17, 10, 0)}
	s := New(Options{Now: fc.Now})
	ran := false
	require.NoError(t, s.Add(Job{Name: "weekend", At: "10:00", Weekdays: []time.Weekday{time.Saturday}, Run: func(ctx context.Context) error {
		ran = true
		return nil
	}}))
	s.RunPending(context.Background())
	assert.True(t, ran)
}

func TestJobFailureIsReported(t *testing.T) {
	fc := &fakeClock{now: kst(16, 15, 40)}
	n := &recordingNotifier{}
	s := New(Options{Now: fc.Now, Notifier: n})
	later := false
	require.NoError(t, s.Add(Job{Name: "eod", At: "15:40", Run: func(ctx context.Context) error {
		return errors.New("journal unreadable")
	}}))
	require.NoError(t, s.Add(Job{Name: "panics", At: "15:40", Run: func(ctx context.Context) error {
		panic("nil map")
	}}))
	require.NoError(t, s.Add(Job{Name: "stop", At: "15:40", Run: func(ctx context.Context) error {
		later = true
		return nil
	}}))

	s.RunPending(context.Background())
	assert.True(t, later, "a failing job does not block the rest")
	require.Len(t, n.msgs, 2)
	assert.Contains(t, n.msgs[0], "eod crashed")
	assert.Contains(t, n.msgs[0], "journal unreadable")
	assert.Contains(t, n.msgs[1], "nil map")
}

func TestAddValidates(t *testing.T) {
	s := New(Options{})
	assert.Error(t, s.Add(Job{Name: "bad", At: "9am", Run: func(ctx context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "empty", At: "09:00"}))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
