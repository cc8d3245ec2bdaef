package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "debug config", config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}}},
		{name: "error config", config: &Config{Level: LevelError, Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected Debug/Info suppressed below LevelWarn, got: %s", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}
}

func TestLoggerKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("processing request", "tag", 123, "op", "READ")

	output := buf.String()
	if !strings.Contains(output, "tag=123") {
		t.Errorf("expected tag=123 in output, got: %s", output)
	}
	if !strings.Contains(output, "op=READ") {
		t.Errorf("expected op=READ in output, got: %s", output)
	}
}

func TestLoggerPrintfVariants(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("operation failed: %v", "disk full")
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected formatted error message, got: %s", buf.String())
	}
}

func TestWithConnTagsEveryLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	tagged := logger.WithConn("127.0.0.1:5000")

	tagged.Info("reserved matrix")
	if !strings.Contains(buf.String(), "conn=127.0.0.1:5000") {
		t.Errorf("expected conn tag in output, got: %s", buf.String())
	}
}

func TestWithJobAddsOnTopOfConn(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	tagged := logger.WithConn("127.0.0.1:5000").WithJob(7)

	tagged.Warn("worker panic recovered")
	output := buf.String()
	if !strings.Contains(output, "conn=127.0.0.1:5000") {
		t.Errorf("expected conn tag in output, got: %s", output)
	}
	if !strings.Contains(output, "job=7") {
		t.Errorf("expected job tag in output, got: %s", output)
	}
}

func TestWithConnDoesNotMutateParentTags(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	_ = logger.WithConn("a").WithJob(1)
	_ = logger.WithConn("b").WithJob(2)

	logger.Info("untagged")
	if strings.Contains(buf.String(), "conn=") {
		t.Errorf("expected parent logger to remain untagged, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}
