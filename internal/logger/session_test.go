package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-trader/internal/clock"
)

func TestSessionWritesDebugLines(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSession(dir, "krx_trader")
	require.NoError(t, err)

	ctx := WithSession(context.Background(), s)
	Debug(ctx, "holdings snapshot", "count", 3)
	Info(context.Background(), "not for the session")
	require.NoError(t, s.Close())

	b, err := os.ReadFile(filepath.Join(dir, "krx_trader", clock.Today()+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "holdings snapshot")
	assert.Contains(t, string(b), "runner=krx_trader")
	assert.NotContains(t, string(b), "not for the session")
}

func TestSessionRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, clock.KST)
	s, err := openSession(dir, "upper", func() time.Time { return now })
	require.NoError(t, err)
	defer s.Close()

	ctx := WithSession(context.Background(), s)
	Info(ctx, "day one")
	now = now.Add(24 * time.Hour)
	Info(ctx, "day two")

	first, err := os.ReadFile(filepath.Join(dir, "upper", "2024-03-04.log"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "upper", "2024-03-05.log"))
	require.NoError(t, err)

	assert.Contains(t, string(first), "day one")
	assert.NotContains(t, string(first), "day two")
	assert.Contains(t, string(second), "day two")
	assert.Equal(t, filepath.Join(dir, "upper", "2024-03-05.log"), s.Path())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("WARN").String())
	assert.Equal(t, "INFO", parseLogLevel("nonsense").String())
}
