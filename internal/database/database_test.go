package database

import (
	"strings"
	"testing"
)

func TestRedacted(t *testing.T) {
	got := redacted("postgres://app:hunter2@db:5432/listen")
	if strings.Contains(got, "hunter2") {
		t.Errorf("redacted = %q, leaks the password", got)
	}
	if !strings.Contains(got, "app") || !strings.Contains(got, "db:5432") {
		t.Errorf("redacted = %q, lost user or host", got)
	}

	if got := redacted("://not-a-url"); got != "(unparseable url)" {
		t.Errorf("redacted = %q for junk input", got)
	}
}
