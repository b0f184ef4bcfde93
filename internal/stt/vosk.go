package stt

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

// voskRecognizer streams PCM frames to a Vosk server over websocket. The
// server answers every audio message with either a partial guess or, when
// it detects an utterance boundary, a final result with word timings.
type voskRecognizer struct {
	conn *websocket.Conn
}

type voskResult struct {
	Text   *string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

func NewVoskRecognizer(serverURL string, sampleRate int) (Recognizer, error) {
	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to vosk server: %w", err)
	}

	cfgMsg := fmt.Sprintf(`{"config": {"sample_rate": %d, "words": true}}`, sampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfgMsg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send vosk config: %w", err)
	}

	return &voskRecognizer{conn: conn}, nil
}

func (r *voskRecognizer) Feed(pcm []byte) (Outcome, error) {
	if err := r.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return Outcome{}, fmt.Errorf("send audio to vosk: %w", err)
	}
	_, message, err := r.conn.ReadMessage()
	if err != nil {
		return Outcome{}, fmt.Errorf("read vosk result: %w", err)
	}
	return parseVoskResult(message)
}

// parseVoskResult maps the Vosk JSON wire format onto an Outcome. A message
// carrying a "text" key is an utterance boundary, even when the text is
// empty (a silence boundary); "partial" is an in-progress guess. Anything
// unparseable is a transient decode error for the caller to skip.
func parseVoskResult(message []byte) (Outcome, error) {
	var result voskResult
	if err := json.Unmarshal(message, &result); err != nil {
		return Outcome{}, fmt.Errorf("decode vosk result: %w", err)
	}

	if result.Text != nil || len(result.Result) > 0 {
		out := Outcome{Final: true}
		if result.Text != nil {
			out.Text = *result.Text
		}
		for _, w := range result.Result {
			out.Words = append(out.Words, Word{Text: w.Word, Start: w.Start, End: w.End})
		}
		return out, nil
	}
	return Outcome{Text: result.Partial}, nil
}

func (r *voskRecognizer) Close() error {
	// EOF asks the server to flush its last hypothesis before we go.
	_ = r.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	_, _, _ = r.conn.ReadMessage()
	return r.conn.Close()
}
