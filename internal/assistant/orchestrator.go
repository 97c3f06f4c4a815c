package assistant

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/history"
)

// ErrEmptyTranscript is returned when a blank transcript is submitted
var ErrEmptyTranscript = errors.New("transcript is empty")

// Fetcher produces a structured answer for a query
type Fetcher interface {
	FetchStructured(ctx context.Context, input string, mode domain.Mode, locale domain.Locale) (*domain.StructuredResult, error)
}

// View is notified as a query progresses
type View interface {
	QueryStarted(transcript domain.Transcript, locale domain.Locale)
	QueryResolved(result *domain.StructuredResult, entryID string)
	QueryFailed(err error)
}

// Snapshot is the view state of an orchestrator
type Snapshot struct {
	Mode       domain.Mode              `json:"mode"`
	Locale     domain.Locale            `json:"locale"`
	Transcript domain.Transcript        `json:"transcript,omitempty"`
	Result     *domain.StructuredResult `json:"result,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Loading    bool                     `json:"loading"`
}

// Orchestrator connects finalized transcripts to the structured client, the
// history store and the view. The mode is fixed for its lifetime.
type Orchestrator struct {
	mode    domain.Mode
	fetcher Fetcher
	store   history.Store
	view    View
	logger  zerolog.Logger

	mu         sync.Mutex
	locale     domain.Locale
	transcript domain.Transcript
	result     *domain.StructuredResult
	err        error
	loading    bool
}

// New creates an orchestrator. store may be nil to skip history.
func New(mode domain.Mode, locale domain.Locale, fetcher Fetcher, store history.Store, view View, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		mode:    mode,
		locale:  locale,
		fetcher: fetcher,
		store:   store,
		view:    view,
		logger:  logger.With().Str("component", "orchestrator").Str("mode", string(mode)).Logger(),
	}
}

// Submit runs a query for transcript at the current locale
func (o *Orchestrator) Submit(ctx context.Context, transcript domain.Transcript) error {
	if transcript.IsEmpty() {
		o.logger.Debug().Msg("Discarding empty transcript")
		return ErrEmptyTranscript
	}

	o.mu.Lock()
	o.transcript = transcript
	locale := o.locale
	o.mu.Unlock()

	return o.run(ctx, transcript, locale)
}

// SetLocale switches the output language. An existing transcript is
// re-submitted at the new locale.
func (o *Orchestrator) SetLocale(ctx context.Context, locale domain.Locale) error {
	o.mu.Lock()
	o.locale = locale
	transcript := o.transcript
	if transcript.IsEmpty() {
		o.err = nil
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	o.logger.Info().Str("locale", string(locale)).Msg("Re-issuing query in new locale")
	return o.run(ctx, transcript, locale)
}

// BeginRecording clears the previous query before a new gesture
func (o *Orchestrator) BeginRecording() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcript = ""
	o.result = nil
	o.err = nil
}

// Locale returns the current output language
func (o *Orchestrator) Locale() domain.Locale {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locale
}

// Snapshot returns the current view state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Mode:       o.mode,
		Locale:     o.locale,
		Transcript: o.transcript,
		Result:     o.result,
		Loading:    o.loading,
	}
	if o.err != nil {
		snap.Error = o.err.Error()
	}
	return snap
}

func (o *Orchestrator) run(ctx context.Context, transcript domain.Transcript, locale domain.Locale) error {
	o.mu.Lock()
	o.result = nil
	o.err = nil
	o.loading = true
	o.mu.Unlock()

	o.view.QueryStarted(transcript, locale)

	result, err := o.fetcher.FetchStructured(ctx, string(transcript), o.mode, locale)

	o.mu.Lock()
	o.loading = false
	if err != nil {
		o.err = err
	} else {
		o.result = result
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn().Err(err).Str("locale", string(locale)).Msg("Query failed")
		o.view.QueryFailed(err)
		return err
	}

	entryID := o.record(ctx, transcript, result, locale)
	o.view.QueryResolved(result, entryID)
	return nil
}

func (o *Orchestrator) record(ctx context.Context, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) string {
	if o.store == nil {
		return ""
	}
	id, err := o.store.Record(ctx, o.mode, transcript, result, locale)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to record history entry")
		return ""
	}
	return id
}
