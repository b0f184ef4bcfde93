package audio

import (
	"fmt"

	"github.com/scribelabs/scribe-core/internal/config"
)

// CaptureFunc receives one captured frame. It runs on the device's real-time
// thread and must only copy and enqueue; no locks shared with slow consumers,
// no blocking. status carries a non-fatal device condition (overrun,
// underrun) and is empty otherwise.
type CaptureFunc func(pcm []byte, status string)

// Source produces fixed-size frames at a fixed sample rate and hands each
// one to the registered callback before capturing the next.
type Source interface {
	Start(cb CaptureFunc) error
	Close() error
}

// NewSource builds the configured capture source.
func NewSource(cfg config.AudioConfig) (Source, error) {
	switch cfg.Mode {
	case "device":
		return NewDeviceSource(cfg)
	case "file":
		return NewFileSource(cfg)
	default:
		return nil, fmt.Errorf("unknown audio mode %q", cfg.Mode)
	}
}
