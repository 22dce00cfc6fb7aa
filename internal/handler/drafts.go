package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/gradebook/internal/model"
)

func (h *Handler) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.DraftFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: model.DraftStatus(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, errBadParam)
		return
	}
	var err error
	if f.SubjectID, err = int64Query(r, "subject"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.QuarterID, err = int64Query(r, "quarter"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.SectionID, err = int64Query(r, "section_id"); err != nil {
		writeError(w, r, err)
		return
	}

	drafts, err := h.store.ListDrafts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []model.Draft{}
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var in model.DraftInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.store.CreateDraft(r.Context(), r.Header.Get("Idempotency-Key"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDraft(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var patch model.DraftPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.store.UpdateDraft(r.Context(), chi.URLParam(r, "draftID"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	doc, err := h.analysis.CreateAnalysisDocument(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleDraftAnalysis(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetAnalysisDocumentForDraft(r.Context(), chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "docID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := h.store.GetAnalysisDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleListQuarters(w http.ResponseWriter, r *http.Request) {
	quarters, err := h.store.ListQuarters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quarters)
}

func (h *Handler) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.store.ListSections(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

func (h *Handler) handleGetSection(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "sectionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sec, err := h.store.GetSection(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "sectionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	students, err := h.store.ListStudents(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}
