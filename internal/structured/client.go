package structured

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/observability"
	"github.com/swasthya/homeo-assistant/internal/resilience"
)

// Config controls the structured client
type Config struct {
	APIKey         string
	MaxAttempts    int           // total attempts, default 3
	InitialBackoff time.Duration // first retry delay, default 1s

	// Sleep overrides the backoff wait (tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client fetches validated structured answers from the model.
type Client struct {
	cfg     Config
	invoker Invoker
	logger  zerolog.Logger
}

// NewClient creates a structured response client
func NewClient(cfg Config, invoker Invoker, logger zerolog.Logger) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Client{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger.With().Str("component", "structured_client").Logger(),
	}
}

// Configured reports whether a model credential is present
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// attemptError tags a single attempt's failure with its kind
type attemptError struct {
	kind string
	err  error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func retryableAttempt(err error) bool {
	var ae *attemptError
	return errors.As(err, &ae) && ae.kind == KindRateLimited
}

// FetchStructured sends input to the model with the instruction for mode and
// locale, and returns the validated result. Only rate-limited attempts are
// retried. Every failure is an *Error whose Message is localized.
func (c *Client) FetchStructured(ctx context.Context, input string, mode domain.Mode, locale domain.Locale) (*domain.StructuredResult, error) {
	msgs := messagesFor(locale)
	logger := c.logger.With().Str("mode", string(mode)).Str("locale", string(locale)).Logger()

	if !c.Configured() {
		logger.Error().Msg("Model API key is not configured")
		observability.RecordQueryResult(string(mode), KindConfig)
		return nil, &Error{Kind: KindConfig, Message: msgs.config}
	}

	instruction := BuildInstruction(mode, locale)
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       c.cfg.MaxAttempts,
		InitialBackoff:    c.cfg.InitialBackoff,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Sleep:             c.cfg.Sleep,
		OnRetry: func(failed resilience.Attempt, err error) {
			logger.Warn().
				Err(err).
				Int("attempt", failed.Number).
				Int("max_attempts", c.cfg.MaxAttempts).
				Int64("delay_ms", failed.NextDelay.Milliseconds()).
				Msg("Model rate limited, backing off")
			observability.RecordRetryBackoff(failed.NextDelay)
		},
	}

	var result *domain.StructuredResult
	last, err := resilience.Retry(ctx, func(ctx context.Context, attempt resilience.Attempt) error {
		start := time.Now()
		reply, err := c.invoker.Invoke(ctx, input, instruction)
		latency := time.Since(start)

		if err != nil {
			kind := KindUpstream
			if isRateLimit(err) {
				kind = KindRateLimited
			}
			observability.RecordModelAttempt(kind, latency)
			return &attemptError{kind: kind, err: err}
		}

		parsed, err := Decode(reply)
		if err != nil {
			observability.RecordModelAttempt(KindValidation, latency)
			logger.Warn().Err(err).Int("attempt", attempt.Number).Int("reply_bytes", len(reply)).Msg("Model reply failed validation")
			return &attemptError{kind: KindValidation, err: err}
		}

		observability.RecordModelAttempt("success", latency)
		result = parsed
		return nil
	}, retryCfg, retryableAttempt)

	if err == nil {
		if result.Kind() == domain.ResultDiagnosisList && mode == domain.ModeMedicineLookup ||
			result.Kind() == domain.ResultSymptomList && mode == domain.ModeSymptomDiagnosis {
			logger.Warn().Str("result_kind", string(result.Kind())).Msg("Reply shape does not match mode")
		}
		logger.Debug().Int("attempts", last.Number).Str("result_kind", string(result.Kind())).Msg("Structured reply received")
		observability.RecordQueryResult(string(mode), "success")
		return result, nil
	}

	failure := c.translate(err, last, msgs)
	logger.Error().
		Err(err).
		Str("kind", failure.Kind).
		Int("attempts", failure.Attempts).
		Bool("exhausted", failure.Exhausted).
		Msg("Structured request failed")
	observability.RecordQueryResult(string(mode), failure.Kind)
	return nil, failure
}

func (c *Client) translate(err error, last resilience.Attempt, msgs messages) *Error {
	failure := &Error{Kind: KindUpstream, Message: msgs.failed, Attempts: last.Number, Err: err}

	var exhausted *resilience.ExhaustedError
	if errors.As(err, &exhausted) {
		failure.Kind = KindRateLimited
		failure.Attempts = exhausted.Attempts
		// A single allowed attempt is not a retry exhaustion.
		if exhausted.Attempts > 1 {
			failure.Message = msgs.exhausted
			failure.Exhausted = true
		}
		return failure
	}

	var ae *attemptError
	if errors.As(err, &ae) {
		failure.Kind = ae.kind
		if ae.kind == KindValidation {
			failure.Message = msgs.invalid
		}
	}
	return failure
}
