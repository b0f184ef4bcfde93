package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/delivery"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEphemeralAppendOnly(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, "session-1", newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for i, text := range []string{"first", "second", "third"} {
		seg := delivery.Segment{ID: string(rune('a' + i)), SpeakerID: "S1", Text: text, Timestamp: time.Now()}
		if err := s.Append(context.Background(), seg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	view := s.Segments()
	if len(view) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(view))
	}
	if view[0].Text != "first" || view[2].Text != "third" {
		t.Fatalf("segments out of order: %v", view)
	}

	// The read view is a copy: mutating it must not touch the store.
	view[0].Text = "mutated"
	if s.Segments()[0].Text != "first" {
		t.Fatal("read view leaked internal state")
	}
}

func TestSegmentsReadableAfterClose(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, "session-1", newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}

	seg := delivery.Segment{ID: "seg-1", SpeakerID: "S1", Text: "still here", Timestamp: time.Now()}
	if err := s.Append(context.Background(), seg); err != nil {
		t.Fatalf("append segment: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The in-memory view outlives the database handle.
	view := s.Segments()
	if len(view) != 1 || view[0].Text != "still here" {
		t.Fatalf("expected read view to survive close, got %v", view)
	}
}

func TestAppendAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, "session-123", newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	seg := delivery.Segment{ID: "seg-1", SpeakerID: "S1", Text: "open the door", Timestamp: time.Now()}
	if err := s.Append(context.Background(), seg); err != nil {
		t.Fatalf("append segment: %v", err)
	}

	segments, err := s.ListSession(context.Background(), "session-123", 10)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Text != "open the door" || segments[0].SpeakerID != "S1" {
		t.Fatalf("unexpected segment: %+v", segments[0])
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	s, err := Open(context.Background(), cfg, "old-session", newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.registerSession(context.Background()); err != nil {
		t.Fatalf("register session: %v", err)
	}
	if err := s.Append(context.Background(), delivery.Segment{ID: "old", SpeakerID: "S1", Text: "stale"}); err != nil {
		t.Fatalf("append segment: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(context.Background(), cfg, "new-session", newLogger())
	if err != nil {
		t.Fatalf("reopen history store: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	s2.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s2.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	segments, err := s2.ListSession(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) != 0 {
		t.Fatal("expected old session pruned")
	}
}
