package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/gradebook/internal/aggregate"
	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/session"
)

type topicRequest struct {
	Name     string `json:"name"`
	MaxScore int    `json:"max_score"`
}

type topicPatch struct {
	Name     *string `json:"name,omitempty"`
	MaxScore *int    `json:"max_score,omitempty"`
}

// valueRequest carries raw form input; parsing happens in the sheet.
type valueRequest struct {
	Value string `json:"value"`
}

// session returns the open session of the request's draft or writes an error.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View(aggregate.Query{}))
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	status, err := aggregate.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, errBadParam)
		return
	}
	writeJSON(w, http.StatusOK, s.View(aggregate.Query{
		Search: r.URL.Query().Get("q"),
		Status: status,
	}))
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(r.Context(), chi.URLParam(r, "draftID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddTopic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req topicRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.AddTopic(req.Name, req.MaxScore)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req topicPatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "topicID")
	if req.Name != nil {
		if err := s.RenameTopic(id, *req.Name); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.MaxScore != nil {
		if err := s.ResizeTopic(id, *req.MaxScore); err != nil {
			writeError(w, r, err)
			return
		}
	}
	for _, t := range s.Content().Topics {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeError(w, r, errBadParam)
}

func (h *Handler) handleRemoveTopic(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveTopic(chi.URLParam(r, "topicID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetScore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cell, err := s.SetScore(chi.URLParam(r, "studentID"), chi.URLParam(r, "topicID"), req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

func (h *Handler) handleSetPostTest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.SetPostTestMaxScore(req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"post_test_max_score": v})
}

func (h *Handler) handleUpdateHeader(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in model.DraftInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.UpdateHeader(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleRefreshRoster(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RefreshRoster(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View(aggregate.Query{}))
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.SaveNow(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Finalize(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRetryAnalysis(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.RetryAnalysis(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	notes := s.Notifications()
	if notes == nil {
		notes = []session.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}
