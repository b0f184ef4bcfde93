package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/delivery"
	"github.com/scribelabs/scribe-core/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ellipsis marks a live line as still accumulating.
const ellipsis = " …"

type Config struct {
	SpeakerID          string
	PartialMinInterval time.Duration
	// ForceFinalAfter closes an utterance whose partial text has not changed
	// for this long. Zero leaves boundary detection entirely to the
	// recognizer.
	ForceFinalAfter time.Duration
}

// Pipeline owns the recognizer and the segmentation state. A single worker
// goroutine consumes the frame queue, drives the recognizer, and turns its
// raw partial/final stream into a minimal transcript event stream: partials
// are throttled and deduplicated, finals are never dropped.
type Pipeline struct {
	cfg   Config
	rec   stt.Recognizer
	queue *audio.Queue
	out   *delivery.Bus
	log   *slog.Logger
	clock func() time.Time

	// Worker-owned state; no other goroutine touches it.
	epoch       time.Time
	lastPartial string
	lastEmit    time.Time
	forcedText  string
	watchdog    *time.Timer

	partialsEmitted    metric.Int64Counter
	partialsSuppressed metric.Int64Counter
	segmentsFinalized  metric.Int64Counter
	decodeErrors       metric.Int64Counter

	wg sync.WaitGroup
}

func New(cfg Config, rec stt.Recognizer, queue *audio.Queue, out *delivery.Bus, log *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		rec:   rec,
		queue: queue,
		out:   out,
		log:   log.With(slog.String("component", "pipeline")),
		clock: time.Now,
	}

	meter := otel.Meter("scribe.pipeline")
	p.partialsEmitted, _ = meter.Int64Counter("scribe_partials_emitted_total")
	p.partialsSuppressed, _ = meter.Int64Counter("scribe_partials_suppressed_total")
	p.segmentsFinalized, _ = meter.Int64Counter("scribe_segments_finalized_total")
	p.decodeErrors, _ = meter.Int64Counter("scribe_decode_errors_total")
	if dropped, err := meter.Int64ObservableCounter("scribe_frames_dropped_total"); err == nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(dropped, int64(queue.Dropped()))
			return nil
		}, dropped)
	}

	return p
}

// Start launches the recognition worker. The capture epoch is taken now so
// word timings, which are offsets into the audio stream, can be mapped to
// wall-clock timestamps.
func (p *Pipeline) Start() {
	p.epoch = p.clock()
	p.wg.Add(1)
	go p.run()
}

// Wait blocks until the worker has drained the queue and exited. Callers
// close the frame queue first; the delivery bus is closed by the worker on
// the way out.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	defer p.out.Close()
	defer func() {
		if err := p.rec.Close(); err != nil {
			p.log.Warn("recognizer close failed", slog.String("error", err.Error()))
		}
		if dropped := p.queue.Dropped(); dropped > 0 {
			p.log.Info("capture overload dropped frames", slog.Uint64("frames", dropped))
		}
	}()

	var watchdogC <-chan time.Time
	if p.cfg.ForceFinalAfter > 0 {
		p.watchdog = time.NewTimer(p.cfg.ForceFinalAfter)
		defer p.watchdog.Stop()
		watchdogC = p.watchdog.C
	}

	for {
		select {
		case frame, ok := <-p.queue.Frames():
			if !ok {
				return
			}
			outcome, err := p.rec.Feed(frame.PCM)
			if err != nil {
				// Transient decode failure: skip this result, keep the
				// stream alive.
				p.decodeErrors.Add(context.Background(), 1)
				p.log.Warn("recognizer output skipped", slog.Uint64("seq", frame.Seq), slog.String("error", err.Error()))
				continue
			}
			p.handleOutcome(outcome)
		case <-watchdogC:
			p.forceFinal()
			p.watchdog.Reset(p.cfg.ForceFinalAfter)
		}
	}
}

func (p *Pipeline) handleOutcome(o stt.Outcome) {
	text := strings.TrimSpace(o.Text)
	if o.Final {
		p.handleFinal(text, o.Words)
		return
	}
	p.handlePartial(text)
}

func (p *Pipeline) handleFinal(text string, words []stt.Word) {
	p.resetWatchdog()
	p.lastPartial = ""
	p.lastEmit = time.Time{}

	if text == "" {
		return
	}
	if p.forcedText != "" && text == p.forcedText {
		// The watchdog already closed this utterance; the recognizer's own
		// boundary arrived late and carries nothing new.
		p.forcedText = ""
		return
	}
	p.forcedText = ""

	ts := p.clock()
	if len(words) > 0 {
		ts = p.epoch.Add(time.Duration(words[0].Start * float64(time.Second)))
	}
	p.out.PublishSegment(delivery.Segment{
		ID:        uuid.NewString(),
		Timestamp: ts,
		SpeakerID: p.cfg.SpeakerID,
		Text:      text,
	})
	p.out.PublishLive(text)
	p.segmentsFinalized.Add(context.Background(), 1)
}

func (p *Pipeline) handlePartial(text string) {
	if text == "" {
		return
	}
	if text == p.lastPartial {
		p.partialsSuppressed.Add(context.Background(), 1)
		return
	}
	now := p.clock()
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.cfg.PartialMinInterval {
		p.partialsSuppressed.Add(context.Background(), 1)
		return
	}

	p.out.PublishLive(text + ellipsis)
	p.lastPartial = text
	p.lastEmit = now
	p.partialsEmitted.Add(context.Background(), 1)
	p.resetWatchdog()
}

// forceFinal closes an utterance the recognizer has gone quiet on, using
// the last partial text with a wall-clock timestamp. The matching
// recognizer final, should it still arrive, is deduplicated in handleFinal.
func (p *Pipeline) forceFinal() {
	text := p.lastPartial
	if text == "" {
		return
	}
	p.log.Info("forcing utterance boundary", slog.String("text", text))
	p.out.PublishSegment(delivery.Segment{
		ID:        uuid.NewString(),
		Timestamp: p.clock(),
		SpeakerID: p.cfg.SpeakerID,
		Text:      text,
	})
	p.out.PublishLive(text)
	p.segmentsFinalized.Add(context.Background(), 1)
	p.forcedText = text
	p.lastPartial = ""
	p.lastEmit = time.Time{}
}

func (p *Pipeline) resetWatchdog() {
	if p.watchdog == nil {
		return
	}
	if !p.watchdog.Stop() {
		select {
		case <-p.watchdog.C:
		default:
		}
	}
	p.watchdog.Reset(p.cfg.ForceFinalAfter)
}
