package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("frame %d dropped", 42)
	if got != "frame 42 dropped" {
		t.Errorf("expected captured log message, got %q", got)
	}

	// nil installs a no-op logger rather than panicking
	SetLogger(nil)
	Logf("should not panic")
}
