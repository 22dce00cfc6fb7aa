// Package client implements the session draft and roster services against a
// remote gradebook API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/store"
)

// DefaultTimeout bounds a single request when none is configured.
const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response of the remote API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gradebook api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers match remote failures with the local sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusUnprocessableEntity:
		return model.ErrInvalidInput
	}
	return nil
}

// Client talks to the /api routes of a gradebook server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	slog.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	var d model.Draft
	err := c.do(ctx, http.MethodGet, "/api/drafts/"+url.PathEscape(id), nil, &d, nil)
	return d, err
}

// UpdateDraft sends a partial update; a set Content overwrites the remote content.
func (c *Client) UpdateDraft(ctx context.Context, id string, patch model.DraftPatch) (model.Draft, error) {
	var d model.Draft
	err := c.do(ctx, http.MethodPatch, "/api/drafts/"+url.PathEscape(id), patch, &d, nil)
	return d, err
}

// CreateDraft creates a draft. Repeating a call with the same key returns
// the draft created by the first call.
func (c *Client) CreateDraft(ctx context.Context, key string, in model.DraftInput) (model.Draft, error) {
	var header http.Header
	if key != "" {
		header = http.Header{"Idempotency-Key": []string{key}}
	}
	var d model.Draft
	err := c.do(ctx, http.MethodPost, "/api/drafts", in, &d, header)
	return d, err
}

func (c *Client) CreateAnalysisDocument(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	var doc model.AnalysisDocument
	err := c.do(ctx, http.MethodPost, "/api/drafts/"+url.PathEscape(draftID)+"/analysis", nil, &doc, nil)
	return doc, err
}

// GetAnalysisDocumentForDraft returns the document created from a draft.
func (c *Client) GetAnalysisDocumentForDraft(ctx context.Context, draftID string) (model.AnalysisDocument, error) {
	var doc model.AnalysisDocument
	err := c.do(ctx, http.MethodGet, "/api/drafts/"+url.PathEscape(draftID)+"/analysis", nil, &doc, nil)
	return doc, err
}

func (c *Client) GetSection(ctx context.Context, id int64) (model.Section, error) {
	var sec model.Section
	err := c.do(ctx, http.MethodGet, "/api/sections/"+strconv.FormatInt(id, 10), nil, &sec, nil)
	return sec, err
}

// GetStudents returns the roster of a section.
func (c *Client) GetStudents(ctx context.Context, sectionID int64) ([]model.Student, error) {
	var students []model.Student
	err := c.do(ctx, http.MethodGet, "/api/sections/"+strconv.FormatInt(sectionID, 10)+"/students", nil, &students, nil)
	return students, err
}
