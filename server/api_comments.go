package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type commentRequest struct {
	Message string `json:"message"`
}

func cardAndCommentIDs(r *http.Request) (int64, int64, error) {
	cardID, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, 0, err
	}
	commentID, err := parseID(chi.URLParam(r, "commentID"))
	if err != nil {
		return 0, 0, err
	}
	return cardID, commentID, nil
}

func (a *api) handleCommentsByCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	items, err := a.svc.ListComments(r.Context(), id)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, toCommentViews(items))
}

func (a *api) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req commentRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.svc.CreateComment(r.Context(), identityFrom(r.Context()), id, req.Message)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 201, toCommentView(c))
}

func (a *api) handleEditComment(w http.ResponseWriter, r *http.Request) {
	cardID, commentID, err := cardAndCommentIDs(r)
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req commentRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.svc.EditComment(r.Context(), identityFrom(r.Context()), cardID, commentID, req.Message)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, toCommentView(c))
}

func (a *api) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	cardID, commentID, err := cardAndCommentIDs(r)
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.svc.DeleteComment(r.Context(), identityFrom(r.Context()), cardID, commentID); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"message": fmt.Sprintf("Comment with id %d has been deleted", commentID)})
}
