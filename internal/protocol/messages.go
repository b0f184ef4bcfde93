package protocol

import "time"

// LiveUpdate replaces the currently displayed line on remote consumers.
type LiveUpdate struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptSegment is one finalized utterance broadcast on the bus.
type TranscriptSegment struct {
	SessionID string    `json:"session_id"`
	SegmentID string    `json:"segment_id"`
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TranslatedSegment carries an asynchronous translation of a finalized
// utterance.
type TranslatedSegment struct {
	SessionID  string `json:"session_id"`
	SegmentID  string `json:"segment_id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Text       string `json:"text"`
}

const (
	SubjectTranscriptLive       = "transcript.live"
	SubjectTranscriptSegment    = "transcript.segment"
	SubjectTranscriptTranslated = "transcript.segment.translated"
)
