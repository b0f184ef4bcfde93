// Package console renders the live transcript to a terminal: a single
// in-place line for the current utterance and one timestamped row per
// finalized segment.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/scribelabs/scribe-core/internal/delivery"
	"github.com/scribelabs/scribe-core/internal/textutil"
)

type Renderer struct {
	mu      sync.Mutex
	w       io.Writer
	liveLen int
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// SessionHeader opens the transcript with the spelled-out session date.
func (r *Renderer) SessionHeader(start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "=== %s ===\n", textutil.SpellDate(start))
}

// Live overwrites the current line with the latest partial text.
func (r *Renderer) Live(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLineLocked()
	fmt.Fprintf(r.w, "\r%s", text)
	r.liveLen = len([]rune(text))
}

// Segment replaces the live line with a permanent history row.
func (r *Renderer) Segment(seg delivery.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLineLocked()
	fmt.Fprintf(r.w, "\r[%s] %s: %s\n", seg.Timestamp.Format("15:04:05"), seg.SpeakerID, seg.Text)
	r.liveLen = 0
}

func (r *Renderer) clearLineLocked() {
	if r.liveLen == 0 {
		return
	}
	fmt.Fprintf(r.w, "\r%s", strings.Repeat(" ", r.liveLen))
	r.liveLen = 0
}
