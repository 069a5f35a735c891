package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStdLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(LogInfo, &out, &errOut)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("failed %s", "here")

	if strings.Contains(out.String(), "hidden") {
		t.Errorf("Expected debug message to be filtered, got %q", out.String())
	}
	if !strings.Contains(out.String(), "INFO: shown 2") {
		t.Errorf("Expected info message on out, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "ERROR: failed here") {
		t.Errorf("Expected error message on errOut, got %q", errOut.String())
	}
	if strings.Contains(out.String(), "failed") {
		t.Errorf("Expected error message only on errOut, got %q", out.String())
	}

	l.SetLogLevel(LogDebug)
	if l.GetLogLevel() != LogDebug {
		t.Errorf("Expected level DEBUG, got %v", l.GetLogLevel())
	}
	l.Debugf("now visible")
	if !strings.Contains(out.String(), "DEBUG: now visible") {
		t.Errorf("Expected debug message after level change, got %q", out.String())
	}
}

func TestLevelString(t *testing.T) {
	if LogError.String() != "ERROR" {
		t.Errorf("Expected ERROR, got %s", LogError.String())
	}
	if LogLevel(7).String() != "LEVEL(7)" {
		t.Errorf("Expected LEVEL(7), got %s", LogLevel(7).String())
	}
}

func TestNullLogger(t *testing.T) {
	var l ILogger = NullLogger{}
	l.Infof("nothing %d", 1)
	l.Printf(LogError, "nothing")
}

func TestPlainPrefixesForBuffers(t *testing.T) {
	var buf bytes.Buffer
	if isTerminal(&buf) {
		t.Fatal("Expected a buffer not to be a terminal")
	}
	p := prefixesFor(&buf)
	if p[LogInfo] != "INFO" {
		t.Errorf("Expected plain INFO prefix, got %q", p[LogInfo])
	}
}
