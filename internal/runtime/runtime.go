// Package runtime wires the capture, recognition, and delivery stages
// into one process and owns their lifecycle.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scribelabs/scribe-core/internal/audio"
	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/console"
	"github.com/scribelabs/scribe-core/internal/delivery"
	"github.com/scribelabs/scribe-core/internal/history"
	"github.com/scribelabs/scribe-core/internal/natsserver"
	"github.com/scribelabs/scribe-core/internal/pipeline"
	"github.com/scribelabs/scribe-core/internal/relay"
	"github.com/scribelabs/scribe-core/internal/stt"
	"github.com/scribelabs/scribe-core/internal/translate"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	httpServer  *http.Server
	tracerClose func(context.Context) error

	embedded   *natsserver.EmbeddedServer
	busClient  *bus.Client
	translator *translate.Client
	store      *history.Store
	relay      *relay.Service
	renderer   *console.Renderer
	queue      *audio.Queue
	events     *delivery.Bus
	pipe       *pipeline.Pipeline
	source     audio.Source

	sessionID  string
	captureSeq atomic.Uint64
	ready      atomic.Bool
	consumerWG sync.WaitGroup
	httpWG     sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		out:       os.Stdout,
		sessionID: uuid.NewString(),
	}
}

// Start brings the whole pipeline up and blocks until ctx is canceled,
// then tears it down in capture-to-consumer order so no finalized
// segment is lost.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startBus(); err != nil {
		return err
	}

	store, err := history.Open(ctx, r.cfg.History, r.sessionID, r.logger)
	if err != nil {
		r.stopBus()
		return fmt.Errorf("failed to open transcript history: %w", err)
	}
	r.store = store

	rec, err := stt.NewRecognizer(r.cfg.STT, r.cfg.Audio.SampleRate)
	if err != nil {
		r.closeStores()
		return fmt.Errorf("failed to start recognizer: %w", err)
	}

	if r.cfg.Translate.Enabled {
		r.translator = translate.New(r.cfg.Translate)
	}
	r.relay = relay.NewService(context.Background(), r.sessionID, r.busClient, r.translator, r.logger)
	r.renderer = console.NewRenderer(r.out)
	r.renderer.SessionHeader(time.Now())

	r.queue = audio.NewQueue(r.cfg.Audio.QueueDepth)
	r.events = delivery.NewBus()
	r.pipe = pipeline.New(pipeline.Config{
		SpeakerID:          r.cfg.STT.SpeakerID,
		PartialMinInterval: time.Duration(r.cfg.STT.PartialMinIntervalMS) * time.Millisecond,
		ForceFinalAfter:    time.Duration(r.cfg.STT.ForceFinalAfterMS) * time.Millisecond,
	}, rec, r.queue, r.events, r.logger)
	r.pipe.Start()

	r.consumerWG.Add(1)
	go r.presentLoop()

	source, err := audio.NewSource(r.cfg.Audio)
	if err != nil {
		r.teardownPipeline()
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	r.source = source
	if err := source.Start(r.onCapture); err != nil {
		r.teardownPipeline()
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	r.startHTTP(metricHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("session_id", r.sessionID),
		slog.String("audio_mode", r.cfg.Audio.Mode),
		slog.String("stt_mode", r.cfg.STT.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.source.Close(); err != nil {
		r.logger.Error("audio source shutdown error", slogError(err))
	}
	r.queue.Close()
	r.pipe.Wait()
	r.consumerWG.Wait()

	// Handlers read the store; it must outlive the HTTP server.
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
		r.httpWG.Wait()
	}

	r.relay.Close()
	r.closeStores()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
	return nil
}

// teardownPipeline unwinds a partially started pipeline on a startup
// failure, before the HTTP server exists: no more frames in, worker
// finishes what is queued, the consumer loop empties the delivery bus,
// then the downstream services close.
func (r *Runtime) teardownPipeline() {
	r.queue.Close()
	r.pipe.Wait()
	r.consumerWG.Wait()
	r.relay.Close()
	r.closeStores()
}

// closeStores releases the store's database but keeps r.store set: the
// in-memory read view stays valid for any straggling reader.
func (r *Runtime) closeStores() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("history shutdown error", slogError(err))
		}
	}
	r.stopBus()
}

func (r *Runtime) startBus() error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	if r.cfg.Bus.Embedded {
		srv, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.embedded = srv
	}
	client, err := bus.Connect(clientBusConfig(r.cfg.Bus), r.logger)
	if err != nil {
		if r.embedded != nil {
			r.embedded.Shutdown()
			r.embedded = nil
		}
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = client
	return nil
}

// clientBusConfig points the client at the embedded server when one is
// running; configured server URLs apply only to external brokers.
func clientBusConfig(cfg config.BusConfig) config.BusConfig {
	if cfg.Embedded {
		cfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)}
	}
	return cfg
}

func (r *Runtime) stopBus() {
	if r.busClient != nil {
		r.busClient.Close()
		r.busClient = nil
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
		r.embedded = nil
	}
}

// onCapture runs on the capture thread. It must not block: the queue
// absorbs bursts and sheds the oldest frames under sustained pressure.
func (r *Runtime) onCapture(pcm []byte, status string) {
	if status != "" {
		r.logger.Warn("audio source status", slog.String("status", status))
		return
	}
	r.queue.Push(audio.Frame{Seq: r.captureSeq.Add(1) - 1, PCM: pcm})
}

// presentLoop is the single consumer of the delivery bus. It wakes on
// the drain ticker or a publish notification, whichever comes first,
// and exits only after the closed bus has been fully drained.
func (r *Runtime) presentLoop() {
	defer r.consumerWG.Done()

	ctx := context.Background()
	interval := time.Duration(r.cfg.Delivery.DrainIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.drainOnce(ctx)
		case _, open := <-r.events.Notify():
			if !open {
				for r.drainOnce(ctx) {
				}
				return
			}
			r.drainOnce(ctx)
		}
	}
}

func (r *Runtime) drainOnce(ctx context.Context) bool {
	live, hasLive, segs := r.events.Drain(r.cfg.Delivery.MaxEventsPerDrain)
	for _, seg := range segs {
		r.renderer.Segment(seg)
		if err := r.store.Append(ctx, seg); err != nil {
			r.logger.Warn("failed to persist segment", slog.String("segment_id", seg.ID), slogError(err))
		}
		r.relay.PublishSegment(seg)
	}
	if hasLive {
		r.renderer.Live(live)
		r.relay.PublishLive(live)
	}
	return hasLive || len(segs) > 0
}

func (r *Runtime) startHTTP(metricHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/v1/transcript", r.handleTranscript)
	mux.HandleFunc("/v1/translate", r.handleTranslate)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.httpWG.Add(1)
	go func() {
		defer r.httpWG.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
		}
	}()
	r.logger.Info("http listening", slog.String("addr", addr))
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type transcriptResponse struct {
	SessionID string             `json:"session_id"`
	Segments  []delivery.Segment `json:"segments"`
}

func (r *Runtime) handleTranscript(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := transcriptResponse{SessionID: r.sessionID, Segments: r.store.Segments()}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("failed to encode transcript response", slogError(err))
	}
}

func (r *Runtime) handleTranslate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.translator == nil {
		http.Error(w, "translation disabled", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Text == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	translated, err := r.translator.Translate(req.Context(), body.Text)
	if err != nil {
		r.logger.Warn("translation request failed", slogError(err))
		http.Error(w, "translation failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"translatedText": translated,
		"source":         r.translator.SourceLang(),
		"target":         r.translator.TargetLang(),
	})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
