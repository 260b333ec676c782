package entities

import "errors"

// ChatMessage represents one bubble in a text conversation. Messages are
// never mutated after they are appended.
type ChatMessage struct {
	ID     string `json:"id"`
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Validate validates the chat message data
func (m ChatMessage) Validate() error {
	if m.ID == "" {
		return errors.New("id is required")
	}
	if !m.Sender.Valid() {
		return errors.New("invalid sender")
	}
	return nil
}
