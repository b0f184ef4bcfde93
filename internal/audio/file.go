package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/scribelabs/scribe-core/internal/config"
)

// FileSource replays a 16-bit PCM WAV file as if it were a live capture,
// pacing frames at their real-time duration. Used for offline runs and
// demos; reaching the end of the file surfaces a status once and stops.
type FileSource struct {
	cfg  config.AudioConfig
	file *os.File
	dec  *wav.Decoder

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewFileSource(cfg config.AudioConfig) (*FileSource, error) {
	f, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", cfg.FilePath)
	}
	if int(dec.SampleRate) != cfg.SampleRate {
		f.Close()
		return nil, fmt.Errorf("wav sample rate %d does not match configured %d", dec.SampleRate, cfg.SampleRate)
	}
	return &FileSource{
		cfg:  cfg,
		file: f,
		dec:  dec,
		done: make(chan struct{}),
	}, nil
}

func (s *FileSource) Start(cb CaptureFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("file source already started")
	}
	s.started = true

	frameDuration := time.Duration(s.cfg.FrameSamples) * time.Second / time.Duration(s.cfg.SampleRate)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		buf := &gaudio.IntBuffer{
			Data:   make([]int, s.cfg.FrameSamples*s.cfg.Channels),
			Format: &gaudio.Format{NumChannels: s.cfg.Channels, SampleRate: s.cfg.SampleRate},
		}
		for {
			n, err := s.dec.PCMBuffer(buf)
			if err != nil || n == 0 {
				cb(nil, "end of audio file")
				return
			}
			pcm := make([]byte, n*2)
			for i := 0; i < n; i++ {
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(buf.Data[i])))
			}
			cb(pcm, "")

			select {
			case <-ticker.C:
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	if s.started {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
	return s.file.Close()
}
