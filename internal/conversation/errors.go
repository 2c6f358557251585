package conversation

import "errors"

var (
	ErrEmptyMessage           = errors.New("conversation: message is empty")
	ErrTooManyPending         = errors.New("conversation: too many replies pending")
	ErrSessionClosed          = errors.New("conversation: session closed")
	ErrCredentialRequired     = errors.New("conversation: speech credential required")
	ErrSpeechUnavailable      = errors.New("conversation: speech synthesis not configured")
	ErrAlreadySpeaking        = errors.New("conversation: already speaking")
	ErrMessageNotFound        = errors.New("conversation: assistant message not found")
	ErrRecognitionUnavailable = errors.New("conversation: speech recognition unavailable")
	ErrRecognitionFailed      = errors.New("conversation: speech recognition failed")
)
