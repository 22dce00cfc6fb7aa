package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/gradebook/internal/autosave"
	"github.com/pavelanni/gradebook/internal/draft"
	"github.com/pavelanni/gradebook/internal/finalize"
	"github.com/pavelanni/gradebook/internal/i18n"
	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/session"
	"github.com/pavelanni/gradebook/internal/store"
)

var errBadParam = errors.New("invalid path or query parameter")

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// errorStatus maps an error to an HTTP status and a stable code. Failures of
// the finalization calls are upstream errors whatever caused them.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, finalize.ErrPersist), errors.Is(err, finalize.ErrAnalysis):
		return http.StatusBadGateway, "upstream"
	case errors.Is(err, errBadJSON), errors.Is(err, errBadParam):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, store.ErrNotFound), errors.Is(err, draft.ErrTopicNotFound),
		errors.Is(err, session.ErrNotOpen):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrFinalized), errors.Is(err, store.ErrDraftFinalized),
		errors.Is(err, store.ErrStatusTransition), errors.Is(err, store.ErrDraftNotFinalized),
		errors.Is(err, finalize.ErrWrongPhase), errors.Is(err, session.ErrClosed),
		errors.Is(err, autosave.ErrClosed):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, draft.ErrNotNumeric),
		errors.Is(err, draft.ErrScoreOutOfRange), errors.Is(err, draft.ErrInvalidMaxScore),
		errors.Is(err, draft.ErrLastTopic), errors.Is(err, finalize.ErrInvalidPostTestMax),
		errors.Is(err, finalize.ErrNoTopics):
		return http.StatusUnprocessableEntity, "validation"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// messageIDs holds the errors that have a translated user message.
var messageIDs = []struct {
	err error
	id  string
}{
	{session.ErrFinalized, "DraftLocked"},
	{store.ErrDraftFinalized, "DraftLocked"},
	{draft.ErrLastTopic, "LastTopic"},
	{draft.ErrNotNumeric, "NotNumeric"},
	{finalize.ErrInvalidPostTestMax, "PostTestRequired"},
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	for _, m := range messageIDs {
		if errors.Is(err, m.err) {
			msg = i18n.T(r.Context(), m.id)
			break
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}
