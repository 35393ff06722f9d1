package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// DefaultProfile is used when a request names no profile.
const DefaultProfile = "structured"

// DefaultMaxBody bounds the size of a transform request body.
const DefaultMaxBody = 32 << 20

// RecordingSink persists deliveries and identifies the run it wrote.
type RecordingSink interface {
	driven.Sink
	RunID() string
}

// Recorder creates a RecordingSink extracting with profile.
type Recorder func(profile domain.Profile) RecordingSink

// Handler handles the HTTP API.
type Handler struct {
	extract  driving.ExtractService
	profiles driving.ProfileService
	records  driven.RecordStore
	recorder Recorder
	metrics  http.Handler
	log      *logger.Logger
	maxBody  int64
	timeout  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithProfiles resolves the profiles of recorded runs.
func WithProfiles(p driving.ProfileService) Option {
	return func(h *Handler) { h.profiles = p }
}

// WithRecords stores every transform through recorder and serves the
// stored runs from store.
func WithRecords(store driven.RecordStore, recorder Recorder) Option {
	return func(h *Handler) {
		h.records = store
		h.recorder = recorder
	}
}

// WithMetrics serves m on /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMaxBody bounds the transform request body.
func WithMaxBody(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

// New creates a Handler.
func New(extract driving.ExtractService, opts ...Option) *Handler {
	h := &Handler{
		extract: extract,
		log:     logger.Discard(),
		maxBody: DefaultMaxBody,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the routes of the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Post("/transform", h.handleTransform)
		if h.records != nil {
			r.Get("/runs", h.handleListRuns)
			r.Get("/runs/{id}/records", h.handleListRecords)
		}
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("%s %s %d %s (request %s)", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TransformResponse is the body of a successful transform.
type TransformResponse struct {
	RunID      string                         `json:"run_id,omitempty"`
	Records    map[string][]map[string]string `json:"records"`
	Count      int                            `json:"count"`
	Passes     int                            `json:"passes"`
	Documents  int                            `json:"documents"`
	Skipped    int                            `json:"skipped"`
	Unresolved int                            `json:"unresolved"`
}

func (h *Handler) handleTransform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	scope, err := domain.ParseScope(query.Get("scope"))
	if err != nil {
		writeError(w, err)
		return
	}
	perDocument := false
	if v := query.Get("per_document"); v != "" {
		if perDocument, err = strconv.ParseBool(v); err != nil {
			writeError(w, fmt.Errorf("%w: per_document %q", domain.ErrInvalidInput, v))
			return
		}
	}
	profile := query.Get("profile")
	if profile == "" {
		profile = DefaultProfile
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: reading body: %v", domain.ErrInvalidInput, err))
		return
	}
	if len(body) == 0 {
		writeError(w, fmt.Errorf("%w: empty body", domain.ErrInvalidInput))
		return
	}

	req := driving.ExtractRequest{
		Documents: []domain.RawDocument{{
			URI:      "http:" + middleware.GetReqID(ctx),
			MIMEType: r.Header.Get("Content-Type"),
			Content:  body,
		}},
		Profile:     profile,
		Scope:       scope,
		PerDocument: perDocument,
	}

	var recording RecordingSink
	if h.recorder != nil {
		p := domain.Profile{}
		if h.profiles != nil {
			if p, err = h.profiles.Profile(profile); err != nil {
				writeError(w, err)
				return
			}
		}
		recording = h.recorder(p)
		defer recording.Close()
		req.Sinks = append(req.Sinks, recording)
	}

	result, err := h.extract.Extract(ctx, req)
	if err != nil {
		h.log.Warn("transform failed: %v", err)
		writeError(w, err)
		return
	}

	resp := TransformResponse{Records: result.Records}
	if resp.Records == nil {
		resp.Records = map[string][]map[string]string{}
	}
	for _, records := range result.Records {
		resp.Count += len(records)
	}
	if result.Report != nil {
		resp.Passes = result.Report.Passes
		resp.Documents = result.Report.Documents
		resp.Skipped = result.Report.Skipped
		resp.Unresolved = result.Report.Unresolved
	}
	if recording != nil {
		resp.RunID = recording.RunID()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.records.ListRuns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.StoredRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.ListRecords(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.StoredRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedType):
		status = http.StatusUnsupportedMediaType
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
