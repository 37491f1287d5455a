package runner

import (
	"sync"
	"time"
)

// Token is a cooperative stop signal for a monitor loop. It is cancelled
// once and stays cancelled.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

func (t *Token) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

func (t *Token) Done() <-chan struct{} { return t.ch }

// Sleep waits for d and reports whether the token is still live. It
// returns early with false as soon as the token is cancelled.
func (t *Token) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !t.Cancelled()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ch:
		return false
	case <-timer.C:
		return !t.Cancelled()
	}
}

// SleepUntil waits until deadline, in steps of at most step, and reports
// whether the token is still live.
func (t *Token) SleepUntil(now func() time.Time, deadline time.Time, step time.Duration) bool {
	for {
		remaining := deadline.Sub(now())
		if remaining <= 0 {
			return !t.Cancelled()
		}
		if step > 0 && remaining > step {
			remaining = step
		}
		if !t.Sleep(remaining) {
			return false
		}
	}
}
