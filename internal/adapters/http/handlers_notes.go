package httpadapter

import (
	"net/http"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

type addNoteRequest struct {
	NoteText    string                  `json:"note_text"`
	NoteType    string                  `json:"note_type"`
	Priority    string                  `json:"priority"`
	IsInternal  bool                    `json:"is_internal"`
	Attachments []domain.NoteAttachment `json:"attachments"`
}

type updateNoteRequest struct {
	NoteText   *string `json:"note_text"`
	Priority   *string `json:"priority"`
	IsInternal *bool   `json:"is_internal"`
}

func (rt *Router) addNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req addNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.accessibleDocument(r.Context(), principal, pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	note, err := rt.svc.Notes.Add(r.Context(), principal, domain.AddNoteInput{
		DocumentID:  doc.ID,
		Text:        req.NoteText,
		Type:        req.NoteType,
		Priority:    req.Priority,
		Internal:    req.IsInternal,
		Attachments: req.Attachments,
		Context:     requestContext(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (rt *Router) listDocumentNotes(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	doc, err := rt.accessibleDocument(r.Context(), principal, pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := rt.svc.Notes.ListForDocument(r.Context(), principal, doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilNotes(notes))
}

func (rt *Router) documentNoteStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	doc, err := rt.accessibleDocument(r.Context(), principal, pathParam(r, "documentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := rt.svc.Notes.StatsForDocument(r.Context(), doc.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) listTransactionNotes(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	key := pathParam(r, "transactionId")
	if _, err := rt.svc.Transactions.Get(r.Context(), principal, key); err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := rt.svc.Notes.ListForTransaction(r.Context(), principal, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilNotes(notes))
}

func (rt *Router) listUserNotes(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	userID := pathParam(r, "userId")
	if !principal.CanAccess(userID) {
		writeError(w, r, domain.Fail(domain.ErrPermissionDenied, "list notes", "cannot list another user's notes"))
		return
	}
	notes, err := rt.svc.Notes.ListForUser(r.Context(), principal, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilNotes(notes))
}

func (rt *Router) updateNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req updateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := domain.NotePatch{Text: req.NoteText, Internal: req.IsInternal}
	if req.Priority != nil {
		priority := domain.NotePriority(*req.Priority)
		patch.Priority = &priority
	}
	note, err := rt.svc.Notes.Update(r.Context(), principal, pathParam(r, "noteId"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (rt *Router) deleteNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := rt.svc.Notes.Remove(r.Context(), principal, pathParam(r, "noteId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}

func nonNilNotes(notes []domain.Note) []domain.Note {
	if notes == nil {
		return []domain.Note{}
	}
	return notes
}
