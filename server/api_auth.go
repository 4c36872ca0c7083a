package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type authResponse struct {
	OK        bool   `json:"ok"`
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (a *api) issueToken(w http.ResponseWriter, status int, u User) {
	token, exp, err := a.tokens.Issue(u.ID)
	if err != nil {
		a.log.Error("issue token", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, status, authResponse{OK: true, User: u, Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}

type registerRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Name     string
}

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && errs[0].Field() == "password" && errs[0].Tag() == "min" {
			writeError(w, 400, "password too short")
			return
		}
		writeError(w, 400, "invalid payload")
		return
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("bcrypt", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	isAdmin := a.admins[strings.ToLower(req.Email)]
	u, err := a.store.CreateUser(r.Context(), req.Email, string(hashBytes), strings.TrimSpace(req.Name), isAdmin)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, 400, "email already registered")
			return
		}
		a.log.Error("register", "err", err)
		writeError(w, 400, "cannot create user")
		return
	}
	a.log.Info("user registered", "user_id", u.ID, "admin", u.IsAdmin)
	a.issueToken(w, 201, u)
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	if err := readJSON(w, r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Error("login", "err", err)
		}
		writeError(w, 401, "invalid credentials")
		return
	}
	a.issueToken(w, 200, u)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.UserByID(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	writeJSON(w, 200, map[string]any{"user": u})
}
