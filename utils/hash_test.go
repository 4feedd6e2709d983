package utils

import (
	"strings"
	"testing"
	"time"
)

func TestTakeHash(t *testing.T) {
	at := time.Date(2026, 1, 31, 19, 30, 0, 0, time.UTC)

	h := TakeHash("The Rockets will win tonight", at)
	if len(h) != 16 {
		t.Fatalf("len = %d, want 16", len(h))
	}
	if h != TakeHash("The Rockets will win tonight", at) {
		t.Error("hash must be deterministic for same text and time")
	}
	if h == TakeHash("The Rockets will lose tonight", at) {
		t.Error("different text must hash differently")
	}
	if h == TakeHash("The Rockets will win tonight", at.Add(time.Millisecond)) {
		t.Error("different creation time must hash differently")
	}
}

func TestNormalizeTakeText(t *testing.T) {
	if got := NormalizeTakeText("  hello world \n"); got != "hello world" {
		t.Errorf("got %q", got)
	}
	// Decomposed é (e + combining accent) collapses to the composed form
	decomposed := "café"
	composed := "café"
	if got := NormalizeTakeText(decomposed); got != composed {
		t.Errorf("NFC: got %q, want %q", got, composed)
	}
}

func TestTakeSlug(t *testing.T) {
	got := TakeSlug("Jess Stirman", "The Rockets will beat the Mavericks easily tonight", "1a2b3c4d5e6f7890")
	if !strings.HasSuffix(got, "-1a2b3c") {
		t.Errorf("slug %q missing 6-char hash suffix", got)
	}
	if !strings.HasPrefix(got, "jess-stirman-the-rockets-will-beat-the") {
		t.Errorf("slug %q, want author plus first six words", got)
	}
	if strings.Contains(got, " ") || got != strings.ToLower(got) {
		t.Errorf("slug %q must be lowercase with no spaces", got)
	}
}
