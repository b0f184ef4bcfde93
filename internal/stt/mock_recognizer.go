package stt

import "fmt"

type mockRecognizer struct {
	frames int
}

// NewMockRecognizer returns a recognizer that fabricates a partial for every
// frame and declares an utterance boundary every eighth frame. Useful for
// exercising the pipeline without a model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Feed(pcm []byte) (Outcome, error) {
	m.frames++
	if m.frames%8 == 0 {
		return Outcome{Final: true, Text: fmt.Sprintf("mock utterance %d", m.frames/8)}, nil
	}
	return Outcome{Text: fmt.Sprintf("mock utterance %d length=%d", m.frames/8+1, len(pcm))}, nil
}

func (m *mockRecognizer) Close() error { return nil }
