package conversation

import (
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/usmanalidev/demo-agent-ai/internal/speech"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable entry in a session's history.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Role      Role      `json:"role"`
	Feature   string    `json:"feature,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the mutable part of a session, without the history.
type Status struct {
	PendingReply  bool   `json:"pending_reply"`
	ActiveFeature string `json:"active_feature,omitempty"`
	SpeechEnabled bool   `json:"speech_enabled"`
	IsSpeaking    bool   `json:"is_speaking"`
	IsListening   bool   `json:"is_listening"`
}

// State is a point-in-time copy of a session.
type State struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Status
}

// NoticeKind names a user-visible notification.
type NoticeKind string

const (
	NoticeCredentialRequired     NoticeKind = "credential_required"
	NoticeSpeechFailed           NoticeKind = "speech_failed"
	NoticeRecognitionUnavailable NoticeKind = "recognition_unavailable"
	NoticeRecognitionFailed      NoticeKind = "recognition_failed"
)

var noticeText = map[NoticeKind]string{
	NoticeCredentialRequired:     "Please provide your ElevenLabs API key to enable voice features",
	NoticeSpeechFailed:           "Failed to play audio. Please check your API key.",
	NoticeRecognitionUnavailable: "Speech recognition not supported in this browser",
	NoticeRecognitionFailed:      "Speech recognition error",
}

// Notice is a toast-style message for the user.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

func newNotice(kind NoticeKind) Notice {
	return Notice{Kind: kind, Text: noticeText[kind]}
}

// Utterance is synthesized audio for one assistant message.
type Utterance struct {
	ID        string        `json:"utterance_id"`
	MessageID string        `json:"message_id"`
	Audio     *speech.Audio `json:"audio"`
}

var newMessageID = func() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return "msg_" + uuid.NewString()
	}
	return "msg_" + id
}

var newUtteranceID = func() string {
	return uuid.NewString()
}
