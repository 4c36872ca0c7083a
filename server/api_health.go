package main

import (
	"context"
	"net/http"
	"time"
)

// handleHealth reports 503 while the database is unreachable.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.log.Warn("health: db ping", "err", err)
		writeJSON(w, 503, map[string]any{"ok": false, "db": "down"})
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "db": a.store.driver, "ts": time.Now().UTC().Format(time.RFC3339)})
}
