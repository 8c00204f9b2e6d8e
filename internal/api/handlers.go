package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/clipboard-service/internal/metrics"
	"github.com/kenneth/clipboard-service/internal/snippet"
)

// Handler serves the snippet HTTP surface.
type Handler struct {
	service *snippet.Service
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a new API handler.
func NewHandler(service *snippet.Service, logger *logrus.Logger, m *metrics.Metrics) *Handler {
	return &Handler{service: service, logger: logger, metrics: m}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/live", h.handleLive).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware)
	api.HandleFunc("/snippets", h.handleAccept).Methods(http.MethodPost)
	api.HandleFunc("/snippets", h.handleFetchRecent).Methods(http.MethodGet)
	api.HandleFunc("/snippets/search", h.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/snippets/{id}", h.handleFetchOne).Methods(http.MethodGet)
	api.HandleFunc("/snippets/{id}", h.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/snippets/{id}/access", h.handleTouch).Methods(http.MethodPost)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.HealthHandler()(w, r)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	metrics.ReadinessHandler(nil)(w, r)
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	metrics.LivenessHandler()(w, r)
}

// acceptRequest is the POST /snippets request body.
type acceptRequest struct {
	Content   string `json:"content"`
	SourceURL string `json:"sourceUrl"`
}

// snippetResponse is the response shape for every snippet-bearing endpoint.
type snippetResponse struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	SourceURL *string   `json:"sourceUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// errorResponse is the error body shape for every failing endpoint.
type errorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())

	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, start, snippet.ErrBadRequest("malformed request body"))
		return
	}

	summary, err := h.service.Accept(r.Context(), owner, []byte(req.Content), req.SourceURL)
	if err != nil {
		h.writeError(w, r, start, err)
		return
	}

	resp := snippetResponse{
		ID:        summary.ID,
		Content:   "",
		SourceURL: nonEmptyPtr(req.SourceURL),
		CreatedAt: summary.CreatedAt,
		UpdatedAt: summary.CreatedAt,
	}
	h.writeJSON(w, r, start, http.StatusCreated, resp)
}

func (h *Handler) handleFetchRecent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())

	items, err := h.service.FetchRecent(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, start, err)
		return
	}

	resp := make([]snippetResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, itemToResponse(it))
	}
	h.writeJSON(w, r, start, http.StatusOK, resp)
}

func (h *Handler) handleFetchOne(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, start, snippet.ErrBadRequest("invalid snippet id"))
		return
	}

	item, err := h.service.FetchOne(r.Context(), owner, id)
	if err != nil {
		h.writeError(w, r, start, err)
		return
	}

	h.writeJSON(w, r, start, http.StatusOK, itemToResponse(item))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())
	query := r.URL.Query().Get("query")

	items, err := h.service.Search(r.Context(), owner, query)
	if err != nil {
		h.writeError(w, r, start, err)
		return
	}

	resp := make([]snippetResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, itemToResponse(it))
	}
	h.writeJSON(w, r, start, http.StatusOK, resp)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, start, snippet.ErrBadRequest("invalid snippet id"))
		return
	}

	if err := h.service.Delete(r.Context(), owner, id); err != nil {
		h.writeError(w, r, start, err)
		return
	}
	h.writeNoContent(w, r, start, http.StatusNoContent)
}

func (h *Handler) handleTouch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, _ := OwnerFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, start, snippet.ErrBadRequest("invalid snippet id"))
		return
	}

	if err := h.service.Touch(r.Context(), owner, id); err != nil {
		h.writeError(w, r, start, err)
		return
	}
	h.writeNoContent(w, r, start, http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func itemToResponse(it snippet.Item) snippetResponse {
	resp := snippetResponse{
		ID:        it.ID,
		SourceURL: nonEmptyPtr(it.SourceURL),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
	if it.HasContent {
		resp.Content = it.Content
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, start time.Time, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal response body")
		h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start), 0)
		return
	}
	n, _ := w.Write(data)
	h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start), int64(n))
}

func (h *Handler) writeNoContent(w http.ResponseWriter, r *http.Request, start time.Time, status int) {
	w.WriteHeader(status)
	h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start), 0)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	status, kind := statusForError(err)

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	} else {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Warn("request rejected")
	}

	var details any
	var svcErr *snippet.Error
	if errors.As(err, &svcErr) && svcErr.Kind == snippet.KindQuotaExceeded {
		details = map[string]int{"current": svcErr.Current, "max": svcErr.Max}
	}

	resp := errorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     kind,
		Message:   err.Error(),
		Details:   details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(resp)
	n, _ := w.Write(data)
	h.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start), int64(n))
}

func statusForError(err error) (int, string) {
	var svcErr *snippet.Error
	if !errors.As(err, &svcErr) {
		return http.StatusInternalServerError, "internal"
	}

	switch svcErr.Kind {
	case snippet.KindBadRequest:
		return http.StatusBadRequest, string(svcErr.Kind)
	case snippet.KindQuotaExceeded:
		return http.StatusBadRequest, string(svcErr.Kind)
	case snippet.KindWordLimitExceeded:
		return http.StatusBadRequest, string(svcErr.Kind)
	case snippet.KindDuplicate:
		return http.StatusConflict, string(svcErr.Kind)
	case snippet.KindNotFound:
		return http.StatusNotFound, string(svcErr.Kind)
	case snippet.KindNotReady:
		return http.StatusNotFound, string(svcErr.Kind)
	case snippet.KindCorruptPayload:
		return http.StatusInternalServerError, string(svcErr.Kind)
	default:
		return http.StatusInternalServerError, "internal"
	}
}
