package monitoring

import (
	"fmt"
	"testing"
)

func TestComponent(t *testing.T) {
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { SetLogger(nil) })

	logf := Component("uart")
	logf("read failed: %v", "EOF")

	// Replacing the logger afterwards still takes effect.
	var later []string
	SetLogger(func(format string, v ...interface{}) {
		later = append(later, fmt.Sprintf(format, v...))
	})
	logf("reopened")

	if len(lines) != 1 || lines[0] != "[uart] read failed: EOF" {
		t.Errorf("first logger got %q", lines)
	}
	if len(later) != 1 || later[0] != "[uart] reopened" {
		t.Errorf("second logger got %q", later)
	}
}

func TestSetLogger_Nil(t *testing.T) {
	SetLogger(nil)
	Logf("dropped %d", 1)
	Component("sim")("dropped too")
}
