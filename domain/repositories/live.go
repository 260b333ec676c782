package repositories

import "context"

// MediaBlob is one encoded audio frame ready for the live transport.
// Data is base64 encoded.
type MediaBlob struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// LiveConfig is the fixed configuration a voice session is opened with
type LiveConfig struct {
	Model                    string
	VoiceName                string
	SystemInstruction        string
	InputSampleRate          int
	OutputSampleRate         int
	InputAudioTranscription  bool
	OutputAudioTranscription bool
}

// LiveEvent is one server event of a streaming session.
// Empty strings mean the field was absent from the event.
type LiveEvent struct {
	InputTranscription  string
	OutputTranscription string
	TurnComplete        bool
	// AudioData is base64 PCM16 at the configured output sample rate
	AudioData   string
	Interrupted bool
}

// LiveCallbacks receives the session lifecycle. Callbacks run on the
// session's receive goroutine and may fire before Connect returns.
type LiveCallbacks struct {
	OnOpen    func()
	OnMessage func(event LiveEvent)
	OnError   func(err error)
	OnClose   func(reason string)
}

// LiveModel opens real-time audio sessions with the AI service
type LiveModel interface {
	Connect(ctx context.Context, config LiveConfig, callbacks LiveCallbacks) (LiveSession, error)
}

// LiveSession is the handle of an open streaming session
type LiveSession interface {
	// SendAudio queues one frame; it does not wait for the transport.
	SendAudio(frame MediaBlob) error
	Close() error
}
