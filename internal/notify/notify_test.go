package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"alertdesk/internal/logging"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Notification) error { return f.err }

func TestConstructors(t *testing.T) {
	ok := Success("Cache", "Clear")
	assert.Equal(t, LevelSuccess, ok.Level)
	assert.Equal(t, "Cache", ok.Title)
	assert.Equal(t, "Clear", ok.Body)
	assert.NotEmpty(t, ok.ID)
	assert.False(t, ok.Time.IsZero())

	bad := Error("Error", "boom")
	assert.Equal(t, LevelError, bad.Level)
	assert.NotEqual(t, ok.ID, bad.ID)
	assert.Equal(t, "error", bad.Level.String())
	assert.Equal(t, "unknown", Level(9).String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Notify(context.Background(), Success("Cache", "Clear")))
	require.NoError(t, r.Notify(context.Background(), Error("Error", "x")))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "Clear", all[0].Body)

	// The copy is detached from the recorder.
	all[0].Body = "changed"
	assert.Equal(t, "Clear", r.All()[0].Body)

	r.Reset()
	assert.Empty(t, r.All())
}

func TestMultiDeliversToAll(t *testing.T) {
	var a, b Recorder
	boom := errors.New("boom")
	m := Multi{&a, failing{boom}, nil, &b}

	err := m.Notify(context.Background(), Success("Cache", "Clear"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)

	assert.NoError(t, Multi{Nop{}}.Notify(context.Background(), Success("a", "b")))
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	require.NoError(t, term.Notify(context.Background(), Success("Cache", "Clear")))
	require.NoError(t, term.Notify(context.Background(), Error("Error", "Cache was not cleared.")))

	out := buf.String()
	assert.Contains(t, out, "[Cache] Clear")
	assert.Contains(t, out, "[Error] Cache was not cleared.")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetBase(zap.New(core))
	t.Cleanup(func() { logging.SetBase(nil) })

	require.NoError(t, Log{}.Notify(context.Background(), Error("Error", "server said no")))

	entries := logs.FilterMessage("server said no").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "notify", entries[0].LoggerName)
	assert.Equal(t, "Error", entries[0].ContextMap()["title"])
}
