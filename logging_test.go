package fiber

import (
	"strings"
	"testing"
)

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf strings.Builder
	l := NewWriterLogger(LevelWarn, &buf)

	l.Log(LogEntry{Level: LevelInfo, Category: "test", Message: "should be filtered"})
	if buf.Len() != 0 {
		t.Fatalf("expected info entry to be filtered out, got %q", buf.String())
	}

	l.Log(LogEntry{Level: LevelError, Category: "test", Message: "boom", FiberID: 5})
	out := buf.String()
	if !strings.Contains(out, "boom") || !strings.Contains(out, "fiber=5") {
		t.Errorf("expected message and fiber id in output, got %q", out)
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	if l.IsEnabled(LevelError) {
		t.Error("expected NoOpLogger to report every level disabled")
	}
	l.Log(LogEntry{Level: LevelError, Message: "ignored"})
}

func TestSetStructuredLoggerInstallsGlobal(t *testing.T) {
	var buf strings.Builder
	l := NewWriterLogger(LevelDebug, &buf)
	SetStructuredLogger(l)
	defer SetStructuredLogger(NewNoOpLogger())

	if getGlobalLogger() != Logger(l) {
		t.Error("expected getGlobalLogger to return the installed logger")
	}
}

func TestLogLevelString(t *testing.T) {
	cases := map[LogLevel]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}
