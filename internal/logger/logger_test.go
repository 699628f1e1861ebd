package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     zerolog.Level
		expectDbg bool
	}{
		{"debug level shows debug", zerolog.DebugLevel, true},
		{"info level hides debug", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, tt.level, "fleet")

			l.Debug("dialing %s", "gpu25")
			l.Info("polled %d targets", 12)

			out := buf.String()
			assert.Contains(t, out, "polled 12 targets")
			assert.Contains(t, out, "fleet")
			if tt.expectDbg {
				assert.Contains(t, out, "dialing gpu25")
			} else {
				assert.NotContains(t, out, "dialing gpu25")
			}
		})
	}
}

func TestNew_WarnAndError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel, "")

	l.Info("hidden")
	l.Warn("jump host %s failed", "shell1")
	l.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "jump host shell1 failed")
	assert.Contains(t, out, "boom")
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(DebugEnv, "")
	assert.Equal(t, zerolog.InfoLevel, LevelFromEnv())

	t.Setenv(DebugEnv, "1")
	assert.Equal(t, zerolog.DebugLevel, LevelFromEnv())
}

func TestNoopLogger(t *testing.T) {
	l := Noop()
	require.NotNil(t, l)

	l.Debug("a %s", "b")
	l.Info("a")
	l.Warn("a")
	l.Error("a")
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	msgs := l.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, LogMessage{Level: "debug", Message: "debug 1"}, msgs[0])
	assert.Equal(t, LogMessage{Level: "error", Message: "error 4"}, msgs[3])
	assert.True(t, l.HasLevel("warn"))
	assert.Equal(t, 1, l.Count("info"))

	l.Clear()
	assert.Empty(t, l.Messages())
	assert.False(t, l.HasLevel("warn"))
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Warn("attempt %d", n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, l.Count("warn"))
}

func TestDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	buf := NewBufferLogger()
	SetDefault(buf)
	Default().Info("hello")

	assert.True(t, buf.HasLevel("info"))
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = &zeroLogger{}
	var _ Logger = &noopLogger{}
	var _ Logger = &BufferLogger{}
}
