package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCLILogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger := NewCLILogger(level)
			require.NotNil(t, logger)
			assert.True(t, logger.Enabled(t.Context(), ParseLogLevel(level)))
		})
	}
}

func TestCLIHandler_Colors(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger)
		color string
	}{
		{"info", func(l *slog.Logger) { l.Info("scored") }, colorGreen},
		{"warn", func(l *slog.Logger) { l.Warn("identifier-like column") }, colorYellow},
		{"error", func(l *slog.Logger) { l.Error("bad input") }, colorRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewCLIHandler(&buf, slog.LevelInfo)))
			assert.Contains(t, buf.String(), tt.color)
			assert.Contains(t, buf.String(), colorReset)
		})
	}
}

func TestCLIHandler_LevelFiltering(t *testing.T) {
	tests := []struct {
		name         string
		handlerLevel slog.Level
		logFunc      func(*slog.Logger)
		shouldLog    bool
	}{
		{"info handler logs info", slog.LevelInfo, func(l *slog.Logger) { l.Info("test") }, true},
		{"info handler filters debug", slog.LevelInfo, func(l *slog.Logger) { l.Debug("test") }, false},
		{"debug handler logs debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("test") }, true},
		{"warn handler filters info", slog.LevelWarn, func(l *slog.Logger) { l.Info("test") }, false},
		{"error handler logs error", slog.LevelError, func(l *slog.Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(slog.New(NewCLIHandler(&buf, tt.handlerLevel)))
			assert.Equal(t, tt.shouldLog, buf.Len() > 0)
		})
	}
}

func TestCLIHandler_LevelVar(t *testing.T) {
	var buf bytes.Buffer
	lv := &slog.LevelVar{}
	lv.Set(slog.LevelError)
	logger := slog.New(NewCLIHandler(&buf, lv))

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	lv.Set(slog.LevelInfo)
	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCLIHandler_Attributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCLIHandler(&buf, slog.LevelInfo))

	logger.Info("scored", "rows", 6, "source", "sample file")

	out := buf.String()
	assert.Contains(t, out, "scored: ")
	assert.Contains(t, out, "rows=6")
	assert.Contains(t, out, `source="sample file"`)
}

func TestCLIHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHandler(&buf, slog.LevelInfo)

	assert.Equal(t, h, h.WithAttrs(nil))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("run", "abc")}))
	logger.Info("saved", "rows", 2)
	assert.Contains(t, buf.String(), "run=abc rows=2")

	buf.Reset()
	slog.New(h).Info("plain")
	assert.NotContains(t, buf.String(), "run=abc")
}

func TestCLIHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHandler(&buf, slog.LevelInfo)

	assert.Equal(t, h, h.WithGroup(""))

	slog.New(h).WithGroup("server").WithGroup("score").Info("hello")
	out := buf.String()
	assert.Contains(t, out, "[server.score] hello")
}

func TestSetDefaultCLILogger(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	SetDefaultCLILogger("error", true)
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelDebug))

	SetDefaultCLILogger("error", false)
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelInfo))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"  debug  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.input))
		})
	}
}
