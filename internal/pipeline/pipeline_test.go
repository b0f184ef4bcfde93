package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/delivery"
	"github.com/scribelabs/scribe-core/internal/stt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type scriptStep struct {
	out stt.Outcome
	err error
}

// scriptedRecognizer replays a fixed outcome per fed frame.
type scriptedRecognizer struct {
	steps []scriptStep
	i     int
}

func (r *scriptedRecognizer) Feed(_ []byte) (stt.Outcome, error) {
	if r.i >= len(r.steps) {
		return stt.Outcome{}, nil
	}
	step := r.steps[r.i]
	r.i++
	return step.out, step.err
}

func (r *scriptedRecognizer) Close() error { return nil }

func newTestPipeline(cfg Config) (*Pipeline, *delivery.Bus) {
	bus := delivery.NewBus()
	p := New(cfg, &scriptedRecognizer{}, audio.NewQueue(1), bus, newLogger())
	return p, bus
}

func TestPartialThrottleSuppressesRepeatsAndBursts(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1", PartialMinInterval: 80 * time.Millisecond})
	now := time.Unix(1000, 0)
	p.clock = func() time.Time { return now }

	p.handleOutcome(stt.Outcome{Text: "open"})
	live, ok, _ := bus.Drain(10)
	if !ok || live != "open"+ellipsis {
		t.Fatalf("expected first partial to emit, got %q ok=%v", live, ok)
	}

	// Changed text but inside the minimum interval since the last emit:
	// suppressed, and suppression does not advance the emit clock.
	now = now.Add(40 * time.Millisecond)
	p.handleOutcome(stt.Outcome{Text: "open the"})
	if _, ok, _ := bus.Drain(10); ok {
		t.Fatal("partial inside throttle window must be suppressed")
	}

	// Identical text: suppressed regardless of elapsed time.
	now = now.Add(200 * time.Millisecond)
	p.handleOutcome(stt.Outcome{Text: "open"})
	if _, ok, _ := bus.Drain(10); ok {
		t.Fatal("identical partial must be suppressed")
	}

	// Changed text past the interval: emitted.
	now = now.Add(80 * time.Millisecond)
	p.handleOutcome(stt.Outcome{Text: "open the"})
	live, ok, _ = bus.Drain(10)
	if !ok || live != "open the"+ellipsis {
		t.Fatalf("expected throttled partial to emit after interval, got %q ok=%v", live, ok)
	}
}

func TestFinalNeverThrottledAndClearsState(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1", PartialMinInterval: time.Hour})
	now := time.Unix(1000, 0)
	p.clock = func() time.Time { return now }

	p.handleOutcome(stt.Outcome{Text: "open"})
	bus.Drain(10)

	// A final lands immediately even though the throttle window is huge.
	p.handleOutcome(stt.Outcome{Final: true, Text: "open sesame"})
	live, ok, segs := bus.Drain(10)
	if !ok || live != "open sesame" {
		t.Fatalf("expected live refresh on final, got %q ok=%v", live, ok)
	}
	if len(segs) != 1 || segs[0].Text != "open sesame" || segs[0].SpeakerID != "S1" {
		t.Fatalf("expected exactly one segment, got %v", segs)
	}

	// Throttle state was cleared: the same partial text emits again at once.
	p.handleOutcome(stt.Outcome{Text: "open"})
	live, ok, _ = bus.Drain(10)
	if !ok || live != "open"+ellipsis {
		t.Fatalf("expected fresh partial after final, got %q ok=%v", live, ok)
	}
}

func TestSilenceFinalClearsThrottleState(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1", PartialMinInterval: time.Hour})
	now := time.Unix(1000, 0)
	p.clock = func() time.Time { return now }

	p.handleOutcome(stt.Outcome{Text: "hello"})
	bus.Drain(10)

	// A silence boundary: no segment, but the throttle state resets so the
	// same utterance spoken again is not mistaken for a stale repeat.
	p.handleOutcome(stt.Outcome{Final: true, Text: ""})
	if live, ok, segs := bus.Drain(10); ok || len(segs) != 0 {
		t.Fatalf("silence final must emit nothing, got live=%q segs=%v", live, segs)
	}

	p.handleOutcome(stt.Outcome{Text: "hello"})
	live, ok, _ := bus.Drain(10)
	if !ok || live != "hello"+ellipsis {
		t.Fatalf("expected repeated utterance to emit after silence, got %q ok=%v", live, ok)
	}
}

func TestEmptyTextSuppression(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1"})

	p.handleOutcome(stt.Outcome{Text: "   "})
	p.handleOutcome(stt.Outcome{Final: true, Text: " \t "})
	if live, ok, segs := bus.Drain(10); ok || len(segs) != 0 {
		t.Fatalf("empty outcomes must emit nothing, got live=%q segs=%v", live, segs)
	}
}

func TestSegmentTimestampFromFirstWord(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1"})
	epoch := time.Unix(2000, 0)
	p.clock = func() time.Time { return epoch.Add(5 * time.Second) }
	p.epoch = epoch

	p.handleOutcome(stt.Outcome{Final: true, Text: "open the door", Words: []stt.Word{
		{Text: "open", Start: 1.5, End: 1.7},
		{Text: "the", Start: 1.7, End: 1.8},
		{Text: "door", Start: 1.8, End: 2.1},
	}})
	_, _, segs := bus.Drain(10)
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	if want := epoch.Add(1500 * time.Millisecond); !segs[0].Timestamp.Equal(want) {
		t.Fatalf("expected timestamp %v, got %v", want, segs[0].Timestamp)
	}

	// Without word timings the wall clock is used.
	p.handleOutcome(stt.Outcome{Final: true, Text: "again"})
	_, _, segs = bus.Drain(10)
	if !segs[0].Timestamp.Equal(epoch.Add(5 * time.Second)) {
		t.Fatalf("expected wall-clock fallback, got %v", segs[0].Timestamp)
	}
}

func TestMalformedOutcomeResilience(t *testing.T) {
	bus := delivery.NewBus()
	queue := audio.NewQueue(8)
	rec := &scriptedRecognizer{steps: []scriptStep{
		{err: errors.New("unparseable recognizer payload")},
		{out: stt.Outcome{Final: true, Text: "still alive"}},
	}}
	p := New(Config{SpeakerID: "S1"}, rec, queue, bus, newLogger())
	p.Start()

	queue.Push(audio.Frame{Seq: 0, PCM: []byte{1}})
	queue.Push(audio.Frame{Seq: 1, PCM: []byte{2}})
	queue.Close()
	p.Wait()

	_, _, segs := bus.Drain(10)
	if len(segs) != 1 || segs[0].Text != "still alive" {
		t.Fatalf("expected the valid outcome to survive a decode error, got %v", segs)
	}
}

func TestOrderPreservation(t *testing.T) {
	bus := delivery.NewBus()
	queue := audio.NewQueue(8)
	rec := &scriptedRecognizer{steps: []scriptStep{
		{out: stt.Outcome{Final: true, Text: "first"}},
		{out: stt.Outcome{Final: true, Text: "second"}},
		{out: stt.Outcome{Final: true, Text: "third"}},
	}}
	p := New(Config{SpeakerID: "S1"}, rec, queue, bus, newLogger())
	p.Start()

	for seq := uint64(0); seq < 3; seq++ {
		queue.Push(audio.Frame{Seq: seq, PCM: []byte{byte(seq)}})
	}
	queue.Close()
	p.Wait()

	_, _, segs := bus.Drain(10)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if segs[i].Text != want {
			t.Fatalf("segment %d out of order: got %q want %q", i, segs[i].Text, want)
		}
	}
}

func TestEndToEndUtterance(t *testing.T) {
	bus := delivery.NewBus()
	queue := audio.NewQueue(8)
	rec := &scriptedRecognizer{steps: []scriptStep{
		{out: stt.Outcome{Text: "open"}},
		{out: stt.Outcome{Text: "open the"}},
		{out: stt.Outcome{Final: true, Text: "open the door", Words: []stt.Word{
			{Text: "open", Start: 0.0, End: 0.2},
			{Text: "the", Start: 0.2, End: 0.3},
			{Text: "door", Start: 0.3, End: 0.6},
		}}},
	}}
	// Zero interval keeps the partial path deterministic under test.
	p := New(Config{SpeakerID: "S1", PartialMinInterval: 0}, rec, queue, bus, newLogger())
	p.Start()

	for seq := uint64(0); seq < 3; seq++ {
		queue.Push(audio.Frame{Seq: seq, PCM: []byte{byte(seq)}})
	}
	queue.Close()
	p.Wait()

	live, ok, segs := bus.Drain(10)
	if !ok || live != "open the door" {
		t.Fatalf("expected final live refresh, got %q ok=%v", live, ok)
	}
	if len(segs) != 1 {
		t.Fatalf("expected exactly one segment, got %d", len(segs))
	}
	seg := segs[0]
	if seg.Text != "open the door" || seg.SpeakerID != "S1" {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if off := seg.Timestamp.Sub(p.epoch); off != 0 {
		t.Fatalf("expected timestamp at utterance start, offset %v", off)
	}
}

func TestWatchdogForcesBoundaryOnce(t *testing.T) {
	p, bus := newTestPipeline(Config{SpeakerID: "S1", ForceFinalAfter: time.Second})
	now := time.Unix(1000, 0)
	p.clock = func() time.Time { return now }

	p.handleOutcome(stt.Outcome{Text: "hello there"})
	bus.Drain(10)

	p.forceFinal()
	_, _, segs := bus.Drain(10)
	if len(segs) != 1 || segs[0].Text != "hello there" {
		t.Fatalf("expected forced segment, got %v", segs)
	}

	// The recognizer's own late boundary for the same text is deduplicated.
	p.handleOutcome(stt.Outcome{Final: true, Text: "hello there"})
	if _, _, segs := bus.Drain(10); len(segs) != 0 {
		t.Fatalf("expected forced final to be deduplicated, got %v", segs)
	}

	// A different utterance afterwards still finalizes normally.
	p.handleOutcome(stt.Outcome{Final: true, Text: "next one"})
	if _, _, segs := bus.Drain(10); len(segs) != 1 || segs[0].Text != "next one" {
		t.Fatalf("expected next utterance to finalize, got %v", segs)
	}
}
