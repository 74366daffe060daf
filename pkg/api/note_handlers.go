package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/httputil"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/notes"
	"github.com/platinummonkey/quill/pkg/observability"
)

// NoteHandlers serves the note CRUD endpoints
type NoteHandlers struct {
	notes   NoteService
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewNoteHandlers creates the note handler set
func NewNoteHandlers(service NoteService, logger *observability.Logger, metrics *observability.Metrics) *NoteHandlers {
	return &NoteHandlers{notes: service, logger: logger, metrics: metrics}
}

// noteScope converts the pipeline's tenant filter into a note query scope
func noteScope(r *http.Request) (notes.Scope, bool) {
	filter, ok := middleware.GetTenantFilter(r)
	if !ok {
		return notes.Scope{}, false
	}
	return notes.Scope{AccountID: filter.AccountID, OwnerID: filter.OwnerID}, true
}

// Create creates a note for the authenticated user
func (h *NoteHandlers) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	account := middleware.GetAccount(r)
	if authCtx == nil || authCtx.User == nil || account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var input notes.CreateInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	note, err := h.notes.Create(account.ID, authCtx.User.ID, input)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}

	h.metrics.NotesCreatedTotal.Inc()
	httputil.WriteCreated(w, "note created", note)
}

// List returns the tenant's notes with optional search and tag filters
func (h *NoteHandlers) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := noteScope(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	h.list(w, r, scope)
}

// MyNotes is List restricted to notes the caller owns, regardless of role
func (h *NoteHandlers) MyNotes(w http.ResponseWriter, r *http.Request) {
	scope, ok := noteScope(r)
	authCtx := middleware.GetAuthContext(r)
	if !ok || authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	scope.OwnerID = &authCtx.User.ID
	h.list(w, r, scope)
}

func (h *NoteHandlers) list(w http.ResponseWriter, r *http.Request, scope notes.Scope) {
	req := notes.ListRequest{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Page:   httputil.QueryInt(r, "page", 1),
		Limit:  httputil.QueryInt(r, "limit", notes.DefaultPageSize),
	}
	if tags := strings.TrimSpace(r.URL.Query().Get("tags")); tags != "" {
		req.Tags = strings.Split(tags, ",")
	}

	list, err := h.notes.List(scope, req)
	if err != nil {
		h.logger.WithError(err).Error("failed to list notes")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, "", list)
}

// Get returns a single note within the caller's scope
func (h *NoteHandlers) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := noteScope(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	note, err := h.notes.Get(scope, noteID)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	httputil.WriteSuccess(w, "", note)
}

// Update applies a partial update to a note within the caller's scope
func (h *NoteHandlers) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := noteScope(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var input notes.UpdateInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	note, err := h.notes.Update(scope, noteID, input)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	httputil.WriteSuccess(w, "note updated", note)
}

// Delete soft deletes a note within the caller's scope
func (h *NoteHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := noteScope(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.notes.Delete(scope, noteID); err != nil {
		h.writeNoteError(w, err)
		return
	}
	h.metrics.NotesDeletedTotal.Inc()
	httputil.WriteSuccess(w, "note deleted", nil)
}

func (h *NoteHandlers) writeNoteError(w http.ResponseWriter, err error) {
	var validationErr *notes.ValidationError
	var quotaErr *accounts.QuotaExceededError
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		httputil.WriteNotFound(w, "note not found")
	case errors.As(err, &validationErr):
		httputil.WriteValidationErrors(w, []httputil.FieldError{
			{Field: validationErr.Field, Message: validationErr.Message},
		})
	case errors.As(err, &quotaErr):
		h.metrics.QuotaRejectionsTotal.Inc()
		httputil.WriteErrorData(w, http.StatusForbidden, "note quota exceeded", map[string]interface{}{
			"plan":         quotaErr.Plan,
			"note_count":   quotaErr.Current,
			"note_limit":   quotaErr.Limit,
			"upgrade_hint": "upgrade to the pro plan for unlimited notes",
		})
	default:
		h.logger.WithError(err).Error("note operation failed")
		httputil.WriteInternalError(w)
	}
}
