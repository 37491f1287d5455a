package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"krx-trader/internal/clock"
)

type sessionKey struct{}

// Session is a per-runner log sink. Every record logged with a context
// carrying the session is also written to <dir>/<name>/<YYYY-MM-DD>.log at
// debug level, switching files when the KST date changes.
type Session struct {
	mu      sync.Mutex
	dir     string
	name    string
	now     func() time.Time
	date    string
	file    *os.File
	handler slog.Handler
}

// OpenSession creates the session directory and opens today's file.
func OpenSession(dir, name string) (*Session, error) {
	return openSession(dir, name, time.Now)
}

func openSession(dir, name string, now func() time.Time) (*Session, error) {
	s := &Session{dir: dir, name: name, now: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rotate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithSession returns a context whose log records are copied to s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func sessionFrom(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// Path returns the file currently written to.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path(s.date)
}

func (s *Session) path(date string) string {
	return filepath.Join(s.dir, s.name, date+".log")
}

// rotate must be called with s.mu held.
func (s *Session) rotate() error {
	date := clock.Date(s.now())
	if s.file != nil && date == s.date {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(s.dir, s.name), 0o755); err != nil {
		return fmt.Errorf("create session log dir: %w", err)
	}
	f, err := os.OpenFile(s.path(date), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = f
	s.date = date
	s.handler = slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}).
		WithAttrs([]slog.Attr{slog.String("runner", s.name)})
	return nil
}

func (s *Session) handle(ctx context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.rotate(); err != nil {
		return err
	}
	return s.handler.Handle(ctx, r)
}

// Close releases the current file. Records logged after Close are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// fanoutHandler writes to the process handler and, when the context carries
// a session, to the session file as well.
type fanoutHandler struct {
	base slog.Handler
}

func newFanoutHandler(base slog.Handler) *fanoutHandler {
	return &fanoutHandler{base: base}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if sessionFrom(ctx) != nil {
		return true
	}
	return h.base.Enabled(ctx, level)
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r.Clone())
	}
	if s := sessionFrom(ctx); s != nil {
		if serr := s.handle(ctx, r); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{base: h.base.WithAttrs(attrs)}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{base: h.base.WithGroup(name)}
}
