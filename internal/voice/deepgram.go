package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/audio"
	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/resilience"
)

// Audio reaches the engine as mono linear16 at audio.EngineSampleRate.
const deepgramEncoding = string(audio.EncodingLinear16)

// DefaultStopTimeout bounds the wait for Deepgram to close a stopped stream
const DefaultStopTimeout = 5 * time.Second

var ErrEngineNotActive = errors.New("speech engine is not active")

// DeepgramConfig holds the streaming credentials and model
type DeepgramConfig struct {
	APIKey string
	Model  string
}

// streamCallback implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type streamCallback struct {
	*websocketv1api.DefaultCallbackHandler
	engine *DeepgramEngine
	stream *deepgramStream
}

// Message forwards the best alternative as a segment
func (c *streamCallback) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return nil
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	c.stream.listener.Segment(alt.Transcript, msg.IsFinal)
	return nil
}

// Error maps a Deepgram error response to an engine error code
func (c *streamCallback) Error(errorResponse *msginterfaces.ErrorResponse) error {
	code := CodeNetwork
	if errorResponse != nil && errorResponse.ErrCode != "" {
		code = errorResponse.ErrCode
	}
	c.engine.logger.Warn().Str("code", code).Interface("response", errorResponse).Msg("Deepgram error")

	c.engine.breaker.RecordResult(false)
	c.stream.listener.Error(code)
	c.engine.detach(c.stream)
	c.stream.end()
	return nil
}

// Close signals end of session once the stream is closed. Final segments
// flushed after CloseStream have been delivered by then.
func (c *streamCallback) Close(_ *msginterfaces.CloseResponse) error {
	c.engine.detach(c.stream)
	c.stream.end()
	return nil
}

// deepgramStream is one live connection and the listener bound to it
type deepgramStream struct {
	client   *listenClient.WSCallback
	cancel   context.CancelFunc
	listener Listener
	stopOnce sync.Once
	endOnce  sync.Once
}

// shutdown sends CloseStream and closes the connection off the caller's
// goroutine. End fires from the Close callback, or after timeout.
func (s *deepgramStream) shutdown(timeout time.Duration) {
	s.stopOnce.Do(func() {
		time.AfterFunc(timeout, s.end)
		go func() {
			if s.client != nil {
				s.client.Stop()
			}
		}()
	})
}

func (s *deepgramStream) end() {
	s.endOnce.Do(func() {
		s.cancel()
		s.listener.End()
	})
}

// DeepgramEngine implements SpeechEngine and AudioSink over Deepgram's live
// transcription WebSocket. One engine serves one recording session.
type DeepgramEngine struct {
	config      DeepgramConfig
	breaker     *resilience.CircuitBreaker
	logger      zerolog.Logger
	stopTimeout time.Duration

	mu       sync.Mutex
	engine   EngineConfig
	listener Listener
	active   *deepgramStream
}

// NewDeepgramEngine creates an engine. The breaker may be shared between engines.
func NewDeepgramEngine(cfg DeepgramConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *DeepgramEngine {
	return &DeepgramEngine{
		config:      cfg,
		breaker:     breaker,
		logger:      logger.With().Str("component", "deepgram_engine").Logger(),
		stopTimeout: DefaultStopTimeout,
	}
}

// Configure stores the settings and listener used by the next Start
func (d *DeepgramEngine) Configure(cfg EngineConfig, listener Listener) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return fmt.Errorf("deepgram engine is already active")
	}
	d.engine = cfg
	d.listener = listener
	return nil
}

// Start opens a new streaming connection
func (d *DeepgramEngine) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return fmt.Errorf("deepgram engine is already active")
	}
	if d.listener == nil {
		return fmt.Errorf("deepgram engine is not configured")
	}
	if d.config.APIKey == "" {
		return fmt.Errorf("deepgram API key is not configured")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.Model,
		Language:       deepgramLanguage(d.engine.Locale),
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: d.engine.InterimResults,
		Encoding:       deepgramEncoding,
		Channels:       1,
		SampleRate:     audio.EngineSampleRate,
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream := &deepgramStream{cancel: cancel, listener: d.listener}
	callback := &streamCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		engine:                 d,
		stream:                 stream,
	}

	err := d.breaker.Call(func() error {
		client, err := listenClient.NewWSUsingCallback(
			ctx,
			d.config.APIKey,
			&interfaces.ClientOptions{EnableKeepAlive: true},
			tOptions,
			callback,
		)
		if err != nil {
			return fmt.Errorf("failed to create Deepgram client: %w", err)
		}
		if !client.Connect() {
			return fmt.Errorf("failed to connect to Deepgram")
		}
		stream.client = client
		return nil
	})
	if err != nil {
		cancel()
		return err
	}

	d.active = stream
	d.logger.Info().
		Str("model", d.config.Model).
		Str("language", tOptions.Language).
		Msg("Deepgram stream started")
	return nil
}

// SendAudio forwards a PCM frame to the active stream
func (d *DeepgramEngine) SendAudio(audio []byte) error {
	d.mu.Lock()
	stream := d.active
	d.mu.Unlock()

	if stream == nil {
		return ErrEngineNotActive
	}
	if _, err := stream.client.Write(audio); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Stop asks Deepgram to flush and close the active stream. It returns at
// once; trailing final segments and then exactly one end event follow.
func (d *DeepgramEngine) Stop() error {
	d.mu.Lock()
	stream := d.active
	d.active = nil
	d.mu.Unlock()

	if stream == nil {
		return nil
	}

	d.logger.Info().Msg("Stopping Deepgram stream")
	stream.shutdown(d.stopTimeout)
	return nil
}

// Close releases the active stream. The owner has stopped listening by then.
func (d *DeepgramEngine) Close() error {
	return d.Stop()
}

// IsActive returns whether a stream is open
func (d *DeepgramEngine) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// detach forgets stream if it is still the active one and closes it
func (d *DeepgramEngine) detach(stream *deepgramStream) {
	d.mu.Lock()
	current := d.active == stream
	if current {
		d.active = nil
	}
	timeout := d.stopTimeout
	d.mu.Unlock()

	if current {
		stream.shutdown(timeout)
	}
}

func deepgramLanguage(locale domain.Locale) string {
	if locale == domain.LocaleHindi {
		return "hi"
	}
	return "en-US"
}
