package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/scribelabs/scribe-core/internal/bus"
	"github.com/scribelabs/scribe-core/internal/delivery"
	"github.com/scribelabs/scribe-core/internal/protocol"
	"github.com/scribelabs/scribe-core/internal/translate"
)

// Service mirrors transcript events onto the NATS bus and, when a
// translator is configured, publishes asynchronous translations of
// finalized segments. Called only from the presentation drain loop; it
// never blocks it beyond a local publish.
type Service struct {
	bus        *bus.Client
	translator *translate.Client
	sessionID  string
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewService(parent context.Context, sessionID string, busClient *bus.Client, translator *translate.Client, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:        busClient,
		translator: translator,
		sessionID:  sessionID,
		logger:     logger.With(slog.String("component", "relay")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// PublishLive mirrors the current-line text. Live updates are lossy by
// contract, so publish errors are logged and forgotten.
func (s *Service) PublishLive(text string) {
	if s.bus == nil {
		return
	}
	msg := protocol.LiveUpdate{SessionID: s.sessionID, Text: text, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal live update", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptLive, data); err != nil {
		s.logger.Warn("failed to publish live update", slogError(err))
	}
}

// PublishSegment mirrors a finalized utterance and kicks off its
// translation.
func (s *Service) PublishSegment(seg delivery.Segment) {
	if s.bus != nil {
		msg := protocol.TranscriptSegment{
			SessionID: s.sessionID,
			SegmentID: seg.ID,
			SpeakerID: seg.SpeakerID,
			Text:      seg.Text,
			Timestamp: seg.Timestamp.UTC(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Warn("failed to marshal segment", slogError(err))
		} else if err := s.bus.Conn().Publish(protocol.SubjectTranscriptSegment, data); err != nil {
			s.logger.Warn("failed to publish segment", slogError(err))
		}
	}

	if s.translator != nil {
		s.wg.Add(1)
		go s.translateSegment(seg)
	}
}

func (s *Service) translateSegment(seg delivery.Segment) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()

	text, err := s.translator.Translate(ctx, seg.Text)
	if err != nil {
		s.logger.Warn("segment translation failed", slog.String("segment_id", seg.ID), slogError(err))
		return
	}
	s.logger.Info("segment translated",
		slog.String("segment_id", seg.ID),
		slog.String("target_lang", s.translator.TargetLang()))

	if s.bus == nil {
		return
	}
	msg := protocol.TranslatedSegment{
		SessionID:  s.sessionID,
		SegmentID:  seg.ID,
		SourceLang: s.translator.SourceLang(),
		TargetLang: s.translator.TargetLang(),
		Text:       text,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal translated segment", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptTranslated, data); err != nil {
		s.logger.Warn("failed to publish translated segment", slogError(err))
	}
}

// Close waits for in-flight translations, each bounded by its own
// timeout, then cancels the service context.
func (s *Service) Close() {
	s.wg.Wait()
	s.cancel()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
