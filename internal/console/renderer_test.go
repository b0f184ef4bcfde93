package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/scribelabs/scribe-core/internal/delivery"
)

func TestLiveOverwritesInPlace(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Live("open the")
	r.Live("open the door")

	out := buf.String()
	if !strings.Contains(out, "\ropen the door") {
		t.Fatalf("missing latest live text in %q", out)
	}
	if strings.Contains(out, "\n") {
		t.Fatalf("live updates must not emit newlines: %q", out)
	}
}

func TestSegmentReplacesLiveLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Live("open the door …")
	r.Segment(delivery.Segment{
		SpeakerID: "S1",
		Text:      "open the door",
		Timestamp: time.Date(2026, 8, 28, 10, 30, 5, 0, time.UTC),
	})

	out := buf.String()
	if !strings.Contains(out, "[10:30:05] S1: open the door\n") {
		t.Fatalf("missing history row in %q", out)
	}
}

func TestSessionHeaderSpellsDate(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.SessionHeader(time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC))

	out := buf.String()
	if !strings.Contains(out, "August") || !strings.Contains(out, "eighth") {
		t.Fatalf("expected spelled date header, got %q", out)
	}
}

func TestShorterLiveClearsResidue(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Live("a long partial line")
	r.Live("short")

	out := buf.String()
	if !strings.Contains(out, strings.Repeat(" ", len("a long partial line"))) {
		t.Fatalf("expected blanking of previous line in %q", out)
	}
}
