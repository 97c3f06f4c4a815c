package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/assistant"
	"github.com/swasthya/homeo-assistant/internal/audio"
	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/history"
	"github.com/swasthya/homeo-assistant/internal/observability"
	"github.com/swasthya/homeo-assistant/internal/structured"
	"github.com/swasthya/homeo-assistant/internal/voice"
)

const (
	writeTimeout   = 10 * time.Second
	audioQueueSize = 100
)

// EngineFactory creates the speech engine for one connection. Engines that
// also implement voice.AudioSink receive the client's binary frames.
type EngineFactory func(logger zerolog.Logger) (voice.SpeechEngine, error)

var upgrader = websocket.Upgrader{
	// The assistant UI is served from a different origin in development.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// clientMessage is a control message from the browser
type clientMessage struct {
	Type   string `json:"type"` // start, stop, locale
	Locale string `json:"locale,omitempty"`
}

// Event is a message pushed to the browser
type Event struct {
	Type       string                   `json:"type"` // state, transcript, loading, result, error
	State      voice.State              `json:"state,omitempty"`
	Transcript domain.Transcript        `json:"transcript,omitempty"`
	Loading    *bool                    `json:"loading,omitempty"`
	Locale     domain.Locale            `json:"locale,omitempty"`
	Result     *domain.StructuredResult `json:"result,omitempty"`
	EntryID    string                   `json:"entryId,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Kind       string                   `json:"kind,omitempty"` // error kind: busy, voice, config, validation, rate_limited, upstream
	Code       string                   `json:"code,omitempty"` // voice error code
}

// Error kinds produced by the gateway itself
const (
	kindBusy     = "busy"
	kindVoice    = "voice"
	kindProtocol = "protocol"
)

// wsSession owns one browser connection: a voice session, an orchestrator
// and the audio pump feeding the engine.
type wsSession struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	voice        *voice.Session
	orchestrator *assistant.Orchestrator
	engine       voice.SpeechEngine
	audio        voice.AudioSink
	audioIn      chan []byte
	converter    *audio.Converter

	queryMu    sync.Mutex
	queryOwner uint64 // id of the running query loop, 0 when idle
	nextQuery  uint64
	pending    func(ctx context.Context) // transcript waiting for the running query
	closed     bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// HandleAssistantWS serves /ws/assistant?mode=...&locale=...&encoding=...&rate=...
func HandleAssistantWS(fetcher assistant.Fetcher, store history.Store, engines EngineFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := domain.ParseMode(queryOr(r, "mode", string(domain.ModeSymptomDiagnosis)))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		locale, err := domain.ParseLocale(queryOr(r, "locale", string(domain.LocaleHindi)))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		format, err := audio.ParseFormat(r.URL.Query().Get("encoding"), r.URL.Query().Get("rate"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		correlationID := observability.NewCorrelationID()
		logger := observability.WithCorrelationID(correlationID).
			With().
			Str("mode", string(mode)).
			Logger()

		engine, err := engines(logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create speech engine")
			writeError(w, http.StatusServiceUnavailable, "speech engine unavailable")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			closeEngine(engine, logger)
			return
		}
		defer conn.Close()

		s := newWSSession(conn, mode, locale, format, fetcher, store, engine, logger)
		observability.ConnectionOpened()
		defer observability.ConnectionClosed()

		logger.Info().
			Str("locale", string(locale)).
			Str("encoding", string(format.Encoding)).
			Int("sample_rate", format.SampleRate).
			Msg("Assistant connection established")
		s.run()
		logger.Info().Msg("Assistant connection closed")
	}
}

func newWSSession(conn *websocket.Conn, mode domain.Mode, locale domain.Locale, format audio.Format, fetcher assistant.Fetcher, store history.Store, engine voice.SpeechEngine, logger zerolog.Logger) *wsSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSession{
		conn:      conn,
		logger:    logger,
		engine:    engine,
		audioIn:   make(chan []byte, audioQueueSize),
		converter: audio.NewConverter(format),
		ctx:       ctx,
		stop:      cancel,
	}
	if sink, ok := engine.(voice.AudioSink); ok {
		s.audio = sink
	}
	s.voice = voice.NewSession(engine, s, logger)
	s.orchestrator = assistant.New(mode, locale, fetcher, store, s, logger)
	return s
}

// run reads client messages until the connection closes, then tears down.
func (s *wsSession) run() {
	pumpDone := make(chan struct{})
	go s.pumpAudio(pumpDone)

	s.send(Event{Type: "state", State: s.voice.State(), Locale: s.orchestrator.Locale()})
	s.readLoop()

	s.closeQueries()
	s.stop()
	if err := s.voice.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Error closing voice session")
	}
	close(s.audioIn)
	<-pumpDone
	closeEngine(s.engine, s.logger)
	s.wg.Wait()
}

func (s *wsSession) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.queueAudio(data)
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to parse client message")
				s.sendError(kindProtocol, "", "invalid message")
				continue
			}
			s.handleMessage(msg)
		}
	}
}

func (s *wsSession) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "start":
		if s.busy() {
			s.sendError(kindBusy, "", "a query is already in progress")
			return
		}
		s.orchestrator.BeginRecording()
		if err := s.voice.Start(s.orchestrator.Locale()); err != nil {
			s.reportVoiceError(err)
		}

	case "stop":
		// Failures are reported through RecordingFailed.
		_ = s.voice.Stop()

	case "locale":
		locale, err := domain.ParseLocale(msg.Locale)
		if err != nil {
			s.sendError(kindProtocol, "", err.Error())
			return
		}
		if s.busy() {
			s.sendError(kindBusy, "", "a query is already in progress")
			return
		}
		s.send(Event{Type: "state", State: s.voice.State(), Locale: locale})
		s.runQuery(func(ctx context.Context) {
			_ = s.orchestrator.SetLocale(ctx, locale)
		}, false)

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Unknown client message")
		s.sendError(kindProtocol, "", "unknown message type")
	}
}

func (s *wsSession) queueAudio(frame []byte) {
	if s.audio == nil {
		return
	}
	select {
	case s.audioIn <- frame:
	default:
		s.logger.Warn().Msg("Audio queue full, dropping frame")
	}
}

func (s *wsSession) pumpAudio(done chan<- struct{}) {
	defer close(done)
	for frame := range s.audioIn {
		pcm, err := s.converter.Convert(frame)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Dropping audio frame")
			continue
		}
		if len(pcm) == 0 {
			continue
		}
		if err := s.audio.SendAudio(pcm); err != nil && !errors.Is(err, voice.ErrEngineNotActive) {
			s.logger.Debug().Err(err).Msg("Failed to forward audio frame")
		}
	}
}

func (s *wsSession) busy() bool {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()
	return s.queryOwner != 0
}

// runQuery runs fn in the background. While another query is in flight fn
// is either rejected as busy or, with queue set, run once that query ends.
// Only the latest queued query is kept.
func (s *wsSession) runQuery(fn func(ctx context.Context), queue bool) {
	s.queryMu.Lock()
	if s.closed {
		s.queryMu.Unlock()
		return
	}
	if s.queryOwner != 0 {
		if queue {
			s.pending = fn
			s.queryMu.Unlock()
			s.logger.Debug().Msg("Query in flight, transcript queued")
			return
		}
		s.queryMu.Unlock()
		s.sendError(kindBusy, "", "a query is already in progress")
		return
	}
	s.nextQuery++
	id := s.nextQuery
	s.queryOwner = id
	s.wg.Add(1)
	s.queryMu.Unlock()

	go s.queryLoop(id, fn)
}

func (s *wsSession) queryLoop(id uint64, fn func(ctx context.Context)) {
	defer s.wg.Done()
	for fn != nil {
		fn(s.ctx)

		s.queryMu.Lock()
		fn = nil
		if s.queryOwner == id {
			fn, s.pending = s.pending, nil
			if fn == nil {
				s.queryOwner = 0
			}
		}
		s.queryMu.Unlock()
	}
}

// releaseQuery ends the running query before its outcome is sent, so the
// client may act as soon as it sees the result. A queued query keeps the
// session busy.
func (s *wsSession) releaseQuery() {
	s.queryMu.Lock()
	if s.pending == nil {
		s.queryOwner = 0
	}
	s.queryMu.Unlock()
}

// closeQueries drops any queued query and refuses new ones
func (s *wsSession) closeQueries() {
	s.queryMu.Lock()
	s.closed = true
	s.pending = nil
	s.queryMu.Unlock()
}

// TranscriptReady submits the finalized transcript, queued behind any query in flight.
func (s *wsSession) TranscriptReady(transcript domain.Transcript) {
	s.send(Event{Type: "transcript", Transcript: transcript})
	s.runQuery(func(ctx context.Context) {
		_ = s.orchestrator.Submit(ctx, transcript)
	}, true)
}

func (s *wsSession) RecordingStateChanged(state voice.State) {
	s.send(Event{Type: "state", State: state})
}

func (s *wsSession) RecordingFailed(err error) {
	s.reportVoiceError(err)
}

func (s *wsSession) QueryStarted(transcript domain.Transcript, locale domain.Locale) {
	loading := true
	s.send(Event{Type: "loading", Loading: &loading, Transcript: transcript, Locale: locale})
}

func (s *wsSession) QueryResolved(result *domain.StructuredResult, entryID string) {
	s.releaseQuery()
	loading := false
	s.send(Event{Type: "result", Loading: &loading, Result: result, EntryID: entryID})
}

func (s *wsSession) QueryFailed(err error) {
	s.releaseQuery()
	loading := false
	kind := structured.KindOf(err)
	if kind == "" {
		kind = structured.KindUpstream
	}
	s.send(Event{Type: "error", Loading: &loading, Kind: kind, Error: err.Error()})
}

func (s *wsSession) reportVoiceError(err error) {
	var verr *voice.VoiceError
	if errors.As(err, &verr) {
		s.sendError(kindVoice, verr.Code, verr.Error())
		return
	}
	s.sendError(kindVoice, "", err.Error())
}

func (s *wsSession) sendError(kind, code, message string) {
	s.send(Event{Type: "error", Kind: kind, Code: code, Error: message})
}

func (s *wsSession) send(ev Event) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug().Err(err).Str("event", ev.Type).Msg("Failed to write event")
	}
}

func closeEngine(engine voice.SpeechEngine, logger zerolog.Logger) {
	if c, ok := engine.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing speech engine")
		}
	}
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}
