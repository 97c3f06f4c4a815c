package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/swasthya/homeo-assistant/internal/assistant"
	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/history"
	"github.com/swasthya/homeo-assistant/internal/observability"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Fetcher        assistant.Fetcher
	Store          history.Store
	Engines        EngineFactory
	ReadyChecks    map[string]observability.HealthCheckFunc
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// NewRouter builds the service's HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(cfg.ReadyChecks))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/ws/assistant", HandleAssistantWS(cfg.Fetcher, cfg.Store, cfg.Engines))

	api := &apiHandler{fetcher: cfg.Fetcher, store: cfg.Store, logger: cfg.Logger}
	r.Route("/api", func(r chi.Router) {
		// Method checked in the handler so 405 carries a JSON body.
		r.HandleFunc("/gemini", api.gemini)
		r.Get("/history", api.listHistory)
		r.Delete("/history", api.clearHistory)
	})
	return r
}

type apiHandler struct {
	fetcher assistant.Fetcher
	store   history.Store
	logger  zerolog.Logger
}

// geminiRequest mirrors the browser contract. Mode is a name or the
// numeric screen id used by older clients (1 diagnosis, 2 lookup).
type geminiRequest struct {
	UserInput string          `json:"userInput"`
	Mode      json.RawMessage `json:"mode"`
	Language  string          `json:"language"`
}

func (h *apiHandler) gemini(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req geminiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}
	if strings.TrimSpace(req.UserInput) == "" || len(req.Mode) == 0 || string(req.Mode) == "null" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	mode, err := parseModeField(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locale, err := domain.ParseLocale(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.fetcher.FetchStructured(r.Context(), req.UserInput, mode, locale)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *apiHandler) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to clear history")
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseModeField(raw json.RawMessage) (domain.Mode, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return domain.ParseMode(name)
	}

	var screen int
	if err := json.Unmarshal(raw, &screen); err != nil {
		return "", fmt.Errorf("invalid mode %s", raw)
	}
	switch screen {
	case 1:
		return domain.ModeSymptomDiagnosis, nil
	case 2:
		return domain.ModeMedicineLookup, nil
	}
	return "", fmt.Errorf("unknown mode %d", screen)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
