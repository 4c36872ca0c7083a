package main

import "net/http"

func (a *api) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.log.Error("admin list users", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	if users == nil {
		users = []User{}
	}
	writeJSON(w, 200, users)
}
