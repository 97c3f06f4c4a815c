package structured

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

// Error kinds. Match with errors.Is.
var (
	ErrConfig      = errors.New("model credential is not configured")
	ErrValidation  = errors.New("model reply failed validation")
	ErrRateLimited = errors.New("model is rate limited")
	ErrUpstream    = errors.New("model call failed")
)

// Kind names used in logs, metrics and client-facing payloads
const (
	KindConfig      = "config"
	KindValidation  = "validation"
	KindRateLimited = "rate_limited"
	KindUpstream    = "upstream"
)

// Error is the failure returned by FetchStructured. Message is already
// localized for the request's locale.
type Error struct {
	Kind      string
	Message   string
	Attempts  int
	Exhausted bool // every attempt was rate limited
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(kind string) error {
	switch kind {
	case KindConfig:
		return ErrConfig
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	}
	return ErrUpstream
}

// KindOf returns the error kind, or "" for errors not produced here
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

type messages struct {
	config    string
	invalid   string
	failed    string
	exhausted string
}

var catalog = map[domain.Locale]messages{
	domain.LocaleEnglish: {
		config:    "API_KEY environment variable not set on the server.",
		invalid:   "The AI returned a response that could not be understood. Please try again.",
		failed:    "Failed to get a response from the AI.",
		exhausted: "Failed to get a response from the AI after multiple retries.",
	},
	domain.LocaleHindi: {
		config:    "सर्वर पर API_KEY सेट नहीं है।",
		invalid:   "AI का उत्तर समझा नहीं जा सका। कृपया फिर से प्रयास करें।",
		failed:    "AI से उत्तर प्राप्त करने में विफल।",
		exhausted: "कई प्रयासों के बाद भी AI से उत्तर प्राप्त करने में विफल।",
	},
}

func messagesFor(locale domain.Locale) messages {
	if m, ok := catalog[locale]; ok {
		return m
	}
	return catalog[domain.LocaleEnglish]
}

// isRateLimit reports whether a model failure carries 429 semantics
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var invokeErr *InvokeError
	if errors.As(err, &invokeErr) {
		if invokeErr.Code == http.StatusTooManyRequests || strings.EqualFold(invokeErr.Status, "RESOURCE_EXHAUSTED") {
			return true
		}
	}

	return rateLimitPattern.MatchString(err.Error())
}

var rateLimitPattern = regexp.MustCompile(`(?i)\b429\b|\bresource[_ ]exhausted\b`)
