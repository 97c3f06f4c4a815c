package voice

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/observability"
)

// Session turns a continuous stream of recognized segments into exactly one
// transcript per start/stop cycle.
//
// The mutex is never held while calling the engine or the sink. Every cycle
// gets a generation number; engine events tagged with an older generation
// are dropped.
type Session struct {
	engine SpeechEngine
	sink   Sink
	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	segments   []string
	lastErr    error
	generation uint64
	closed     bool
}

// NewSession creates an idle session bound to engine and sink
func NewSession(engine SpeechEngine, sink Sink, logger zerolog.Logger) *Session {
	return &Session{
		engine: engine,
		sink:   sink,
		logger: logger.With().Str("component", "voice_session").Logger(),
		state:  StateIdle,
	}
}

// Start begins a new recording cycle in locale.
func (s *Session) Start(locale domain.Locale) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.generation++
	gen := s.generation
	s.segments = nil
	s.lastErr = nil
	s.state = StateRecording
	s.mu.Unlock()

	listener := &cycleListener{session: s, generation: gen}
	cfg := EngineConfig{Locale: locale, Continuous: true, InterimResults: false}
	if err := s.engine.Configure(cfg, listener); err != nil {
		return s.abortStart(gen, err)
	}
	if err := s.engine.Start(); err != nil {
		return s.abortStart(gen, err)
	}

	s.logger.Debug().Str("locale", string(locale)).Uint64("cycle", gen).Msg("Recording started")
	if s.isCurrent(gen, StateRecording) {
		s.sink.RecordingStateChanged(StateRecording)
	}
	return nil
}

func (s *Session) abortStart(gen uint64, cause error) error {
	verr := &VoiceError{Code: CodeStartFailed, Err: cause}

	s.mu.Lock()
	if s.generation == gen && s.state == StateRecording {
		s.state = StateIdle
		s.lastErr = verr
		s.generation++
	}
	s.mu.Unlock()

	s.logger.Error().Err(cause).Msg("Speech engine failed to start")
	observability.RecordRecordingOutcome("start_failed")
	return verr
}

// Stop asks the engine to finish. The transcript is emitted when the engine
// reports the end of the session. Stop is a no-op unless recording.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil
	}
	s.state = StateFinalizing
	gen := s.generation
	s.mu.Unlock()

	s.sink.RecordingStateChanged(StateFinalizing)

	if err := s.engine.Stop(); err != nil {
		verr := &VoiceError{Code: CodeStopFailed, Err: err}
		if !s.fail(gen, verr) {
			return nil
		}
		s.logger.Error().Err(err).Msg("Speech engine failed to stop")
		observability.RecordRecordingOutcome("stop_failed")
		s.sink.RecordingFailed(verr)
		s.sink.RecordingStateChanged(StateIdle)
		return verr
	}
	return nil
}

// Close cancels any active cycle without emitting a transcript. Further
// calls to Start return ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.state != StateIdle
	s.state = StateIdle
	s.segments = nil
	s.generation++
	s.mu.Unlock()

	if !active {
		return nil
	}
	observability.RecordRecordingOutcome("cancelled")
	if err := s.engine.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop speech engine on close")
		return err
	}
	return nil
}

// State returns the current recording state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the last cycle, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) isCurrent(gen uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.state == state
}

// fail forces the cycle gen to idle with err. It reports false when gen is
// no longer the active cycle.
func (s *Session) fail(gen uint64, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.state == StateIdle {
		return false
	}
	s.state = StateIdle
	s.segments = nil
	s.lastErr = err
	s.generation++
	return true
}

func (s *Session) onSegment(gen uint64, text string, final bool) {
	if !final {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.state == StateIdle {
		return
	}
	s.segments = append(s.segments, text)
	observability.RecordSpeechSegment()
}

func (s *Session) onError(gen uint64, code string) {
	if IsBenign(code) {
		s.logger.Debug().Str("code", code).Msg("Suppressed speech engine condition")
		observability.RecordSuppressedEngineError(code)
		return
	}

	verr := &VoiceError{Code: code}
	if !s.fail(gen, verr) {
		return
	}
	s.logger.Warn().Str("code", code).Msg("Speech engine error")
	observability.RecordRecordingOutcome("engine_error")
	s.sink.RecordingFailed(verr)
	s.sink.RecordingStateChanged(StateIdle)
}

func (s *Session) onEnd(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	transcript := domain.Transcript(strings.Join(s.segments, " "))
	s.state = StateIdle
	s.segments = nil
	s.generation++
	s.mu.Unlock()

	s.sink.RecordingStateChanged(StateIdle)
	if transcript.IsEmpty() {
		s.logger.Debug().Msg("Recording ended without speech")
		observability.RecordRecordingOutcome("empty")
		return
	}
	s.logger.Debug().Int("chars", len(transcript)).Msg("Transcript finalized")
	observability.RecordRecordingOutcome("transcript")
	s.sink.TranscriptReady(transcript)
}

// cycleListener binds engine events to one recording cycle
type cycleListener struct {
	session    *Session
	generation uint64
}

func (l *cycleListener) Segment(text string, final bool) {
	l.session.onSegment(l.generation, text, final)
}

func (l *cycleListener) Error(code string) {
	l.session.onError(l.generation, code)
}

func (l *cycleListener) End() {
	l.session.onEnd(l.generation)
}
