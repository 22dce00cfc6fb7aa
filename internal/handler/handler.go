package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/gradebook/internal/analysis"
	"github.com/pavelanni/gradebook/internal/session"
	"github.com/pavelanni/gradebook/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	analysis *analysis.Service
	sessions *session.Manager
}

// New creates a new Handler.
func New(s *store.Store, an *analysis.Service, sessions *session.Manager) *Handler {
	if an == nil {
		an = analysis.New(s, nil)
	}
	return &Handler{store: s, analysis: an, sessions: sessions}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/drafts", h.handleListDrafts)
		r.Post("/drafts", h.handleCreateDraft)
		r.Get("/drafts/{draftID}", h.handleGetDraft)
		r.Patch("/drafts/{draftID}", h.handleUpdateDraft)
		r.Post("/drafts/{draftID}/analysis", h.handleCreateAnalysis)
		r.Get("/drafts/{draftID}/analysis", h.handleDraftAnalysis)
		r.Get("/analysis/{docID}", h.handleGetAnalysis)

		r.Get("/subjects", h.handleListSubjects)
		r.Get("/quarters", h.handleListQuarters)
		r.Get("/sections", h.handleListSections)
		r.Get("/sections/{sectionID}", h.handleGetSection)
		r.Get("/sections/{sectionID}/students", h.handleListStudents)

		r.Route("/editor/{draftID}", func(r chi.Router) {
			r.Post("/open", h.handleOpen)
			r.Get("/", h.handleView)
			r.Delete("/", h.handleClose)
			r.Post("/topics", h.handleAddTopic)
			r.Patch("/topics/{topicID}", h.handleUpdateTopic)
			r.Delete("/topics/{topicID}", h.handleRemoveTopic)
			r.Put("/scores/{studentID}/{topicID}", h.handleSetScore)
			r.Put("/post-test", h.handleSetPostTest)
			r.Put("/header", h.handleUpdateHeader)
			r.Post("/roster/refresh", h.handleRefreshRoster)
			r.Post("/save", h.handleSave)
			r.Get("/status", h.handleStatus)
			r.Post("/finalize", h.handleFinalize)
			r.Post("/retry-analysis", h.handleRetryAnalysis)
			r.Get("/notifications", h.handleNotifications)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}

var errBadJSON = errors.New("malformed JSON body")

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errBadJSON
		}
		return errors.Join(errBadJSON, err)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.Join(errBadParam, err)
	}
	return id, nil
}

// int64Query parses an optional numeric query parameter.
func int64Query(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Join(errBadParam, err)
	}
	return id, nil
}
