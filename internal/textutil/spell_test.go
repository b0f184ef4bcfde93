package textutil

import (
	"strings"
	"testing"
	"time"
)

func TestSpellNumber(t *testing.T) {
	if got := SpellNumber(7); got != "seven" {
		t.Fatalf("got %q", got)
	}
}

func TestSpellOrdinal(t *testing.T) {
	cases := map[int]string{
		1:  "first",
		3:  "third",
		12: "twelfth",
		20: "twentieth",
	}
	for n, want := range cases {
		if got := SpellOrdinal(n); got != want {
			t.Errorf("SpellOrdinal(%d) = %q, want %q", n, got, want)
		}
	}
	if got := SpellOrdinal(21); !strings.HasSuffix(got, "first") {
		t.Errorf("SpellOrdinal(21) = %q, want twenty-first form", got)
	}
}

func TestSpellDate(t *testing.T) {
	d := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
	got := SpellDate(d)
	if !strings.HasPrefix(got, "August ") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "eighth") {
		t.Fatalf("expected spelled day in %q", got)
	}
}
