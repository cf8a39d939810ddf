package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("[pipeline] frame %d", 1)
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("[pipeline] frame %d", 2)
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugf_Gated(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetDebug(false)
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	SetDebug(false)
	Debugf("evaluated frame %d", 4)
	if len(lines) != 0 {
		t.Fatalf("expected no output with debug off, got %v", lines)
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled should report true after SetDebug(true)")
	}
	Debugf("evaluated frame %d", 4)
	if len(lines) != 1 || lines[0] != "[debug] evaluated frame 4" {
		t.Errorf("unexpected debug output: %v", lines)
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}
