package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type api struct {
	svc     *Service
	store   *Store
	tokens  *TokenIssuer
	log     *slog.Logger
	bus     *EventBus
	metrics *metrics
	admins  map[string]bool
	// rate limiting buckets per IP:key
	rlMu      sync.Mutex
	rl        map[string]*rateBucket
	rlSweepAt time.Time
}

func newAPI(svc *Service, store *Store, tokens *TokenIssuer, bus *EventBus, m *metrics, log *slog.Logger, adminEmails []string) *api {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = true
		}
	}
	return &api{svc: svc, store: store, tokens: tokens, bus: bus, metrics: m, log: log, admins: admins, rl: map[string]*rateBucket{}}
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func (a *api) allow(ip, key string, max int, window time.Duration) bool {
	now := time.Now()
	rk := ip + ":" + key
	a.rlMu.Lock()
	defer a.rlMu.Unlock()
	if now.After(a.rlSweepAt) {
		for k, b := range a.rl {
			if now.After(b.resetAt) {
				delete(a.rl, k)
			}
		}
		a.rlSweepAt = now.Add(window)
	}
	b, ok := a.rl[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(window)}
		a.rl[rk] = b
	}
	if b.count >= max {
		return false
	}
	b.count++
	return true
}

// clientIP drops the port so every connection from one host shares a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.allow(clientIP(r), name, max, window) {
			writeError(w, 429, "too many requests")
			return
		}
		next(w, r)
	}
}

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := codec.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// writeOpError maps Service errors to responses. Anything that is not an
// OpError is hidden behind a 500; Service has already logged it.
func (a *api) writeOpError(w http.ResponseWriter, err error) {
	var opErr *OpError
	if !errors.As(err, &opErr) {
		writeError(w, 500, "internal error")
		return
	}
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, 400, map[string]any{"ok": false, "error": opErr.Msg, "field": opErr.Field})
	case errors.Is(err, ErrUnauthenticated):
		writeError(w, 401, opErr.Msg)
	case errors.Is(err, ErrForbidden):
		writeError(w, 403, opErr.Msg)
	case errors.Is(err, ErrNotFound):
		writeError(w, 404, opErr.Msg)
	default:
		writeError(w, 500, "internal error")
	}
}

// identify attaches the identity from a valid bearer token. Requests without
// one stay anonymous; requireAuth rejects them where needed.
func (a *api) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := a.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			a.log.Debug("bearer token rejected", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// requireAuth enforces a verified identity before any handler work.
func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()).IsZero() {
			writeError(w, 401, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r.Context())
		if id.IsZero() {
			writeError(w, 401, "unauthorized")
			return
		}
		u, err := a.store.UserByID(r.Context(), id.UserID)
		if err != nil {
			writeError(w, 401, "unauthorized")
			return
		}
		if !u.IsAdmin {
			writeError(w, 403, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(log *slog.Logger, m *metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		m.observeRequest(r.Method, sw.status, dur)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status,
			"dur_ms", dur.Milliseconds(), "req_id", middleware.GetReqID(r.Context()))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Implement http.Flusher if underlying writer supports it (needed for SSE)
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
