package review

import (
	"testing"
	"time"
)

func TestMediaFileName(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0)
	got := MediaFileName(42, 1, "123456", "7890", at, "png")
	want := "42-1_123456-7890_1700000000.png"
	if got != want {
		t.Fatalf("MediaFileName = %q, want %q", got, want)
	}
	if !MatchesMediaFileName(got) {
		t.Fatalf("generated name must match the convention: %q", got)
	}
}

func TestMatchesMediaFileName(t *testing.T) {
	t.Parallel()

	if MatchesMediaFileName("random.png") {
		t.Fatalf("plain names must not match")
	}
	if !MatchesMediaFileName("7_0_111-222_1699999999.jpeg") {
		t.Fatalf("underscore id separator must match")
	}
}
