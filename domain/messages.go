package domain

// Fixed texts shown to the learner. They appear as assistant bubbles in the
// voice transcript and the text chat.
const (
	// ConnectingNotice opens every voice session transcript
	ConnectingNotice = "Connecting to EngliChat..."
	// ConnectedNotice replaces ConnectingNotice once the live session is open
	ConnectedNotice = "Connected! Start speaking."
	// MicrophoneFailureNotice replaces the transcript when the session could not start
	MicrophoneFailureNotice = "Could not start the session. Please check microphone permissions and refresh."
	// ConnectionErrorNotice is appended when the live session fails
	ConnectionErrorNotice = "Connection error. Please try again."

	// ChatGreeting is the first bubble of a text chat
	ChatGreeting = "Hello! I'm EngliChat. Type a message in English or Hindi to start practicing."
	// ChatInitFailure replaces the greeting when the chat model is unavailable
	ChatInitFailure = "Sorry, I couldn't connect to the AI service. Please check your API key and refresh the page."
	// ChatReplyFailure is appended when one chat request fails
	ChatReplyFailure = "Sorry, I encountered an error. Please try again."
)

// Transcript entry IDs of the voice session notices
const (
	NoticeIDStart     = "start"
	NoticeIDConnected = "connected"
	NoticeIDFail      = "fail"
	NoticeIDError     = "error"
)

// TutorSystemPrompt is the persona given to both the chat and the live model
const TutorSystemPrompt = `You are EngliChat Ultra v1, an expert English tutor AI for Hindi speakers.
Accept text and voice input. Correct mistakes in grammar, sentence structure, vocabulary, and pronunciation in real-time.
Provide concise, polite corrections, with optional audio demonstrations. Your tone must be friendly, encouraging, and professional.
Guide the user step-by-step to speak proper English. Offer alternative phrasings and idiomatic expressions.
Adapt difficulty based on user proficiency, suggest exercises and mini-lessons like "Type this sentence correctly" or "Repeat after me".
When correcting, be polite and avoid discouraging the user. For example, instead of "That's wrong," say "Good try! A more natural way to say that is...".
Track progress and ensure conversations feel human-like and natural.
Ensure voice calls are natural and low-latency.
Respect user consent and privacy. Never produce unsafe content.

If the user types in Hindi, translate it and suggest the proper English alternative with a brief explanation. For example:
User: "mujhe chai pasand hai"
You: "I like tea."
Explanation: We use the verb 'like' to talk about preferences in English.
Practice: Now, try typing 'I like coffee.'

Keep your responses concise and focused on teaching.
`
