// Package transcript folds streaming transcription fragments from two
// speakers into an ordered list of utterances.
package transcript

import (
	"strings"

	"github.com/google/uuid"

	"github.com/satriahrh/englichat/domain/entities"
)

// Engine holds the ordered transcript and the per-speaker accumulators of
// the turn in progress. It is not safe for concurrent use; the voice
// controller serialises access.
type Engine struct {
	entries []entities.TranscriptEntry
	pending map[entities.Sender]*strings.Builder
	newID   func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithIDGenerator overrides the entry ID source
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates an empty transcript
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pending: map[entities.Sender]*strings.Builder{
			entities.SenderUser:      {},
			entities.SenderAssistant: {},
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merge applies one fragment to the tail of the transcript.
//
// A fragment from the speaker of the last entry amends that entry. When the
// last entry was already final the fragment is joined with a space and the
// entry is reopened, so consecutive turns by one speaker stay in one bubble.
// Any other fragment starts a new entry.
func (e *Engine) Merge(sender entities.Sender, fragment string, isFinal bool) {
	if fragment == "" {
		return
	}

	if n := len(e.entries); n > 0 && e.entries[n-1].Sender == sender {
		last := e.entries[n-1]
		if last.IsFinal {
			last.Text += " " + fragment
		} else {
			last.Text += fragment
		}
		last.IsFinal = isFinal
		e.replace(n-1, last)
		return
	}

	e.entries = append(e.entries, entities.TranscriptEntry{
		ID:      e.newID(),
		Sender:  sender,
		Text:    fragment,
		IsFinal: isFinal,
	})
}

// Ingest records a streaming fragment for the turn in progress
func (e *Engine) Ingest(sender entities.Sender, fragment string) {
	if fragment == "" {
		return
	}
	if b, ok := e.pending[sender]; ok {
		b.WriteString(fragment)
	}
	e.Merge(sender, fragment, false)
}

// CompleteTurn closes the turn: for each speaker with accumulated text, the
// last open entry of that speaker takes the whole accumulated text and
// becomes final. Accumulators are cleared either way.
func (e *Engine) CompleteTurn() {
	for _, sender := range []entities.Sender{entities.SenderUser, entities.SenderAssistant} {
		b := e.pending[sender]
		if b.Len() == 0 {
			continue
		}
		text := b.String()
		b.Reset()

		idx := e.lastIndex(func(t entities.TranscriptEntry) bool {
			return t.Sender == sender && !t.IsFinal
		})
		if idx < 0 {
			continue
		}
		entry := e.entries[idx]
		entry.Text = text
		entry.IsFinal = true
		e.replace(idx, entry)
	}
}

// Pending returns the accumulated text of the sender's turn in progress
func (e *Engine) Pending(sender entities.Sender) string {
	if b, ok := e.pending[sender]; ok {
		return b.String()
	}
	return ""
}

// Notice appends a final assistant line such as a connection status
func (e *Engine) Notice(id, text string) {
	if id == "" {
		id = e.newID()
	}
	e.entries = append(e.entries, entities.TranscriptEntry{
		ID:      id,
		Sender:  entities.SenderAssistant,
		Text:    text,
		IsFinal: true,
	})
}

// ReplaceLast swaps the last entry for entry. An entry never changes
// sender, so when the last entry belongs to someone else entry is appended.
func (e *Engine) ReplaceLast(entry entities.TranscriptEntry) {
	if n := len(e.entries); n > 0 && e.entries[n-1].Sender == entry.Sender {
		e.replace(n-1, entry)
		return
	}
	e.entries = append(e.entries, entry)
}

// Reset drops every entry and accumulator and starts over with entries
func (e *Engine) Reset(entries ...entities.TranscriptEntry) {
	e.entries = append([]entities.TranscriptEntry(nil), entries...)
	for _, b := range e.pending {
		b.Reset()
	}
}

// Entries returns a copy of the transcript
func (e *Engine) Entries() []entities.TranscriptEntry {
	out := make([]entities.TranscriptEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Len returns the number of entries
func (e *Engine) Len() int {
	return len(e.entries)
}

// replace writes entry into a fresh backing array so snapshots handed out
// earlier never observe the change.
func (e *Engine) replace(idx int, entry entities.TranscriptEntry) {
	next := make([]entities.TranscriptEntry, len(e.entries))
	copy(next, e.entries)
	next[idx] = entry
	e.entries = next
}

func (e *Engine) lastIndex(match func(entities.TranscriptEntry) bool) int {
	for i := len(e.entries) - 1; i >= 0; i-- {
		if match(e.entries[i]) {
			return i
		}
	}
	return -1
}
