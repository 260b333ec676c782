package entities

// Sender identifies who produced a transcript entry or chat message
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is one of the known senders
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// TranscriptEntry is one utterance in a voice conversation.
// Entries with IsFinal=false are still being amended by incoming fragments.
type TranscriptEntry struct {
	ID      string `json:"id"`
	Sender  Sender `json:"sender"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}
