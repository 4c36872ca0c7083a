package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type cardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
}

func (req cardRequest) input() CardInput {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return CardInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		Status:      deref(req.Status),
		Priority:    deref(req.Priority),
	}
}

func (a *api) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := a.svc.ListCards(r.Context())
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, toCardViews(cards))
}

func (a *api) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	card, err := a.svc.GetCard(r.Context(), id)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, toCardView(card))
}

func (a *api) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := readJSON(w, r, &req); err != nil {
		a.log.Debug("decode create card", "err", err)
		writeError(w, 400, "invalid payload")
		return
	}
	card, err := a.svc.CreateCard(r.Context(), identityFrom(r.Context()), req.input())
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 201, toCardView(card))
}

func (a *api) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req cardRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	card, err := a.svc.UpdateCard(r.Context(), identityFrom(r.Context()), id, req.input())
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, toCardView(card))
}

func (a *api) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	card, err := a.svc.DeleteCard(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"message": fmt.Sprintf("Card '%s' deleted successfully", card.Title)})
}

// handleCardEvents streams one card's events, or all events without an id.
func (a *api) handleCardEvents(w http.ResponseWriter, r *http.Request) {
	var id int64
	if raw := chi.URLParam(r, "id"); raw != "" {
		v, err := parseID(raw)
		if err != nil || v <= 0 {
			writeError(w, 400, "bad id")
			return
		}
		id = v
	}
	a.bus.ServeSSE(w, r, id)
}
