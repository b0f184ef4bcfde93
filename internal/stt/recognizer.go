package stt

import (
	"fmt"

	"github.com/scribelabs/scribe-core/internal/config"
)

// Word carries per-word timing offsets in seconds from the start of the
// audio stream.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Outcome is one recognizer response to a fed frame: either a
// still-accumulating partial guess or a finalized utterance with optional
// word timings.
type Outcome struct {
	Final bool
	Text  string
	Words []Word
}

// Recognizer abstracts the speech-recognition capability. Implementations
// are single-threaded per instance: exactly one goroutine may call Feed.
type Recognizer interface {
	// Feed processes one PCM frame and returns the recognizer's current
	// outcome for the in-flight utterance.
	Feed(pcm []byte) (Outcome, error)
	Close() error
}

// NewRecognizer builds the configured backend. Construction failures are
// fatal at startup; the pipeline never starts with a broken recognizer.
func NewRecognizer(cfg config.STTConfig, sampleRate int) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "vosk":
		return NewVoskRecognizer(cfg.ServerURL, sampleRate)
	case "exec":
		return NewExecRecognizer(cfg, sampleRate)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
