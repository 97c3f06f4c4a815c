package voice

import (
	"errors"
	"fmt"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

// State is the recording state of a Session
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing" // stop requested, waiting for the engine's end event
)

var (
	ErrInvalidState  = errors.New("voice session is already recording")
	ErrSessionClosed = errors.New("voice session is closed")
)

// Engine error codes that are part of normal operation and never surfaced.
const (
	CodeNoSpeech = "no-speech"
	CodeAborted  = "aborted"
)

// Codes produced by the session itself
const (
	CodeStartFailed = "start-failed"
	CodeStopFailed  = "stop-failed"
	CodeNetwork     = "network"
)

// VoiceError is a recognition failure reported by the engine or the session.
type VoiceError struct {
	Code string
	Err  error
}

func (e *VoiceError) Error() string {
	switch e.Code {
	case CodeStartFailed:
		return "Could not start voice recognition. It may already be active."
	}
	return fmt.Sprintf("Voice recognition error: %s", e.Code)
}

func (e *VoiceError) Unwrap() error {
	return e.Err
}

// IsBenign reports whether an engine error code is suppressed
func IsBenign(code string) bool {
	return code == CodeNoSpeech || code == CodeAborted
}

// EngineConfig is applied to the engine before each start
type EngineConfig struct {
	Locale         domain.Locale
	Continuous     bool
	InterimResults bool
}

// Listener receives engine events. Calls may come from any goroutine.
type Listener interface {
	// Segment delivers recognized text. Only final segments are kept.
	Segment(text string, final bool)
	Error(code string)
	// End signals the engine has stopped listening.
	End()
}

// SpeechEngine is a continuous speech recognizer
type SpeechEngine interface {
	Configure(cfg EngineConfig, listener Listener) error
	Start() error
	Stop() error
}

// AudioSink accepts raw audio for engines fed by the server
type AudioSink interface {
	SendAudio(audio []byte) error
}

// Sink receives session output.
type Sink interface {
	TranscriptReady(transcript domain.Transcript)
	RecordingStateChanged(state State)
	RecordingFailed(err error)
}
