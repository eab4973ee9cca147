package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asapdigest/central-command/engine/crawler"
	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/process"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/mid"
	"github.com/asapdigest/central-command/pkg/natsutil"
)

type server struct {
	store *store.Store
	nc    *nats.Conn
	deps  process.Deps
	log   *slog.Logger
}

// routes registers every handler under /asap/v1. Write operations on
// configuration require admin; queue work and reads need editor.
func (s *server) routes(mux *http.ServeMux) {
	editor := func(h http.HandlerFunc) http.HandlerFunc { return require(mid.RoleEditor, h) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return require(mid.RoleAdmin, h) }

	mux.HandleFunc("GET /asap/v1/crawler/sources", editor(s.handleListSources))
	mux.HandleFunc("POST /asap/v1/crawler/sources", admin(s.handleCreateSource))
	mux.HandleFunc("GET /asap/v1/crawler/sources/{id}", editor(s.handleGetSource))
	mux.HandleFunc("PUT /asap/v1/crawler/sources/{id}", admin(s.handleUpdateSource))
	mux.HandleFunc("DELETE /asap/v1/crawler/sources/{id}", admin(s.handleDeleteSource))
	mux.HandleFunc("POST /asap/v1/crawler/sources/{id}/run", editor(s.handleRunSource))

	mux.HandleFunc("GET /asap/v1/crawler/queue", editor(s.handleQueue))
	mux.HandleFunc("POST /asap/v1/crawler/queue/approve/{id}", editor(s.decide(domain.DecisionApprove)))
	mux.HandleFunc("POST /asap/v1/crawler/queue/reject/{id}", editor(s.decide(domain.DecisionReject)))

	mux.HandleFunc("GET /asap/v1/crawler/content", editor(s.handleSearchContent))
	mux.HandleFunc("GET /asap/v1/crawler/content/{id}", editor(s.handleGetContent))
	mux.HandleFunc("POST /asap/v1/crawler/content/bulk", admin(s.handleBulk))
	mux.HandleFunc("POST /asap/v1/crawler/content/{id}/reindex", admin(s.handleReindex))

	mux.HandleFunc("GET /asap/v1/crawler/moderation-log/{content_id}", editor(s.handleModerationLog))
	mux.HandleFunc("GET /asap/v1/crawler/metrics", editor(s.handleSourceMetrics))
	mux.HandleFunc("GET /asap/v1/crawler/moderation-metrics", editor(s.handleModerationMetrics))
	mux.HandleFunc("GET /asap/v1/crawler/duplicates", editor(s.handleDuplicates))

	mux.HandleFunc("GET /asap/v1/crawler/quality-settings", editor(s.handleGetQualitySettings))
	mux.HandleFunc("POST /asap/v1/crawler/quality-settings", admin(s.handleSaveQualitySettings))
}

// --- Envelope ---

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Code: code, Message: msg}})
}

// writeFailure maps domain errors onto status codes.
func writeFailure(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, quality.ErrInvalidWeights):
		writeErr(w, http.StatusBadRequest, "invalid_weights", err.Error())
	case errors.Is(err, quality.ErrInvalidThresholds):
		writeErr(w, http.StatusBadRequest, "invalid_thresholds", err.Error())
	case errors.As(err, &ve),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidDecision):
		writeErr(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func denyHandler(w http.ResponseWriter, _ *http.Request) {
	writeErr(w, http.StatusForbidden, "permission_denied", "missing or unknown API key")
}

func require(role mid.Role, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := mid.RoleFrom(r.Context())
		if !ok || !got.Allows(role) {
			writeErr(w, http.StatusForbidden, "permission_denied", "insufficient role")
			return
		}
		h(w, r)
	}
}

// --- Source payloads ---

// sourcePayload is the wire shape for a source. Intervals travel as
// seconds rather than Go duration encoding.
type sourcePayload struct {
	ID            int64                  `json:"id,omitempty"`
	Name          string                 `json:"name"`
	Type          domain.SourceType      `json:"type"`
	URL           string                 `json:"url"`
	Active        bool                   `json:"active"`
	FetchInterval int64                  `json:"fetch_interval"`
	MinQuality    float64                `json:"min_quality,omitempty"`
	Keywords      []string               `json:"keywords,omitempty"`
	Selectors     domain.ScrapeSelectors `json:"selectors,omitempty"`
	Fields        domain.APIFieldMap     `json:"fields,omitempty"`
	LastRun       time.Time              `json:"last_run,omitempty"`
	NextRun       time.Time              `json:"next_run,omitempty"`
}

func (p sourcePayload) toDomain() domain.Source {
	return domain.Source{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		URL:           p.URL,
		Active:        p.Active,
		FetchInterval: time.Duration(p.FetchInterval) * time.Second,
		MinQuality:    p.MinQuality,
		Keywords:      p.Keywords,
		Selectors:     p.Selectors,
		Fields:        p.Fields,
	}
}

func fromDomain(src domain.Source) sourcePayload {
	return sourcePayload{
		ID:            src.ID,
		Name:          src.Name,
		Type:          src.Type,
		URL:           src.URL,
		Active:        src.Active,
		FetchInterval: int64(src.FetchInterval / time.Second),
		MinQuality:    src.MinQuality,
		Keywords:      src.Keywords,
		Selectors:     src.Selectors,
		Fields:        src.Fields,
		LastRun:       src.LastRun,
		NextRun:       src.NextRun,
	}
}

// --- Source handlers ---

func (s *server) handleListSources(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	sources, err := s.store.ListSources(r.Context(), activeOnly)
	if err != nil {
		writeFailure(w, err)
		return
	}
	out := make([]sourcePayload, len(sources))
	for i, src := range sources {
		out[i] = fromDomain(src)
	}
	writeOK(w, out)
}

func (s *server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var p sourcePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	src, err := s.store.CreateSource(r.Context(), p.toDomain())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, fromDomain(src))
}

func (s *server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, fromDomain(src))
}

func (s *server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var p sourcePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	src := p.toDomain()
	src.ID = id
	if err := s.store.UpdateSource(r.Context(), src); err != nil {
		writeFailure(w, err)
		return
	}
	updated, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, fromDomain(updated))
}

func (s *server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]int64{"deleted": id})
}

func (s *server) handleRunSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.store.GetSource(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	if s.nc == nil {
		writeErr(w, http.StatusServiceUnavailable, "unavailable", "crawl requests are disabled")
		return
	}
	if err := natsutil.Publish(r.Context(), s.nc, crawler.SubjectRequest, crawler.RunRequest{SourceID: id}); err != nil {
		s.log.Error("publish crawl request", "source_id", id, "err", err)
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]any{"queued": true, "source_id": id})
}

// --- Queue and decisions ---

func (s *server) handleQueue(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 1)
	perPage := intParam(r, "per_page", 20)
	items, total, err := s.store.Queue(r.Context(), page, perPage)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]any{
		"items": items, "total": total, "page": page, "per_page": perPage,
	})
}

type decisionPayload struct {
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note,omitempty"`
}

func (s *server) decide(d domain.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var p decisionPayload
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&p) // body is optional
		}
		if p.Actor == "" {
			role, _ := mid.RoleFrom(r.Context())
			p.Actor = string(role)
		}
		if err := s.store.Decide(r.Context(), id, d, p.Actor, p.Note); err != nil {
			writeFailure(w, err)
			return
		}
		writeOK(w, map[string]any{"id": id, "decision": d})
	}
}

// --- Content ---

func (s *server) handleSearchContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ItemFilter{
		Query:    q.Get("q"),
		Status:   domain.ItemStatus(q.Get("status")),
		SourceID: int64(intParam(r, "source", 0)),
		MinScore: floatParam(r, "min_score"),
		MaxScore: floatParam(r, "max_score"),
		Page:     intParam(r, "page", 1),
		PerPage:  intParam(r, "per_page", 20),
	}
	if f.Status != "" && !domain.ValidItemStatuses[f.Status] {
		writeErr(w, http.StatusBadRequest, "invalid_request", "unknown status "+string(f.Status))
		return
	}
	items, total, err := s.store.SearchItems(r.Context(), f)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]any{
		"items": items, "total": total, "page": f.Page, "per_page": f.PerPage,
	})
}

func (s *server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	log, err := s.store.LogForItem(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]any{"item": item, "moderation_log": log})
}

type bulkPayload struct {
	Action string  `json:"action"` // approve, reject, delete
	IDs    []int64 `json:"ids"`
}

func (s *server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var p bulkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.IDs) == 0 {
		writeErr(w, http.StatusBadRequest, "invalid_request", "action and ids are required")
		return
	}

	var affected int64
	var err error
	switch p.Action {
	case "approve":
		affected, err = s.store.BulkUpdateStatus(r.Context(), p.IDs, domain.StatusApproved)
	case "reject":
		affected, err = s.store.BulkUpdateStatus(r.Context(), p.IDs, domain.StatusRejected)
	case "delete":
		affected, err = s.store.DeleteItems(r.Context(), p.IDs)
	default:
		writeErr(w, http.StatusBadRequest, "invalid_request", "unknown action "+p.Action)
		return
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, map[string]any{"action": p.Action, "affected": affected})
}

func (s *server) handleReindex(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := process.Reindex(r.Context(), s.deps, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, item)
}

// --- Moderation log and metrics ---

func (s *server) handleModerationLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "content_id")
	if !ok {
		return
	}
	if _, err := s.store.GetItem(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	log, err := s.store.LogForItem(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, log)
}

func (s *server) handleSourceMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.SourceMetrics(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, m)
}

func (s *server) handleModerationMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.ModerationMetrics(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, m)
}

func (s *server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.DuplicateGroups(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, groups)
}

// --- Quality settings ---

func (s *server) handleGetQualitySettings(w http.ResponseWriter, r *http.Request) {
	settings := quality.DefaultSettings()
	err := s.store.GetOption(r.Context(), quality.OptionKey, &settings)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeFailure(w, err)
		return
	}
	writeOK(w, settings)
}

func (s *server) handleSaveQualitySettings(w http.ResponseWriter, r *http.Request) {
	var settings quality.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := settings.Normalize(); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.store.SetOption(r.Context(), quality.OptionKey, settings); err != nil {
		writeFailure(w, err)
		return
	}
	writeOK(w, settings)
}

// --- Param helpers ---

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatParam(r *http.Request, name string) float64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
