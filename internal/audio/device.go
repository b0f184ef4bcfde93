package audio

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/scribelabs/scribe-core/internal/config"
)

// DeviceSource captures 16-bit mono PCM from a microphone via miniaudio.
type DeviceSource struct {
	cfg        config.AudioConfig
	frameBytes int

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	started bool
	pending []byte
}

func NewDeviceSource(cfg config.AudioConfig) (*DeviceSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &DeviceSource{
		cfg:        cfg,
		frameBytes: cfg.FrameSamples * cfg.Channels * 2,
		ctx:        ctx,
	}, nil
}

func (s *DeviceSource) Start(cb CaptureFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("device source already started")
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = uint32(s.cfg.Channels)
	deviceCfg.SampleRate = uint32(s.cfg.SampleRate)
	deviceCfg.PeriodSizeInFrames = uint32(s.cfg.FrameSamples)
	deviceCfg.Alsa.NoMMap = 1

	if s.cfg.Device != "" {
		id, err := s.lookupDevice(s.cfg.Device)
		if err != nil {
			return err
		}
		deviceCfg.Capture.DeviceID = id
	}

	callbacks := malgo.DeviceCallbacks{
		// Runs on the miniaudio capture thread: copy, rechunk to the fixed
		// frame size, hand off. Nothing here may block.
		Data: func(_, input []byte, _ uint32) {
			s.pending = append(s.pending, input...)
			for len(s.pending) >= s.frameBytes {
				frame := make([]byte, s.frameBytes)
				copy(frame, s.pending[:s.frameBytes])
				s.pending = s.pending[s.frameBytes:]
				cb(frame, "")
			}
		},
		Stop: func() {
			cb(nil, "capture device stopped")
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	s.device = device
	s.started = true
	return nil
}

func (s *DeviceSource) lookupDevice(name string) (unsafe.Pointer, error) {
	infos, err := s.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		if strings.Contains(info.Name(), name) {
			id := info.ID
			return id.Pointer(), nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

func (s *DeviceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	s.started = false
	if s.ctx != nil {
		err := s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
		if err != nil {
			return fmt.Errorf("uninit audio context: %w", err)
		}
	}
	return nil
}
