package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID("msg")
		if !strings.HasPrefix(id, "msg_") {
			t.Fatalf("expected msg_ prefix, got %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewIDWithoutPrefix(t *testing.T) {
	id := NewID("")
	if len(id) != 32 || strings.Contains(id, "_") {
		t.Fatalf("unexpected bare id %q", id)
	}
}
