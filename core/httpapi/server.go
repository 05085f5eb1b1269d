// Package httpapi exposes the operator API: health, session inspection,
// the transition journal, the hand-off queue and the live menu. It also
// mounts the websocket chat when enabled.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/handoff"
	"github.com/m3rciful/menubot/core/journal"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/menu"
)

// Sessions is the read side of the session store.
type Sessions interface {
	Get(userID string) (dialog.Session, bool)
	List() []dialog.Session
}

// Transitions returns the most recent journal rows for a user.
type Transitions interface {
	Recent(ctx context.Context, userID string, limit int) ([]journal.Record, error)
}

// Handoffs returns the newest hand-off events and the queue length.
type Handoffs interface {
	Peek(ctx context.Context, n int64) ([]handoff.Event, int64, error)
}

// Deps wires the API to the running bot. Nil optional sources disable their routes.
type Deps struct {
	Sessions    Sessions
	Catalog     func() *dialog.Catalog
	Transitions Transitions
	Handoffs    Handoffs
	// WebChat is mounted at WebChatPath when set.
	WebChat     http.Handler
	WebChatPath string
	Version     string
}

// SessionView is the JSON form of a session.
type SessionView struct {
	UserID         string    `json:"user_id"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	LastMessageAt  time.Time `json:"last_message_at"`
	HandoffPending bool      `json:"handoff_pending"`
}

func viewOf(s dialog.Session) SessionView {
	return SessionView{
		UserID:         s.UserID,
		State:          s.State.String(),
		CreatedAt:      s.CreatedAt,
		LastMessageAt:  s.LastMessageTime,
		HandoffPending: s.HasPendingTimeout(),
	}
}

// NewRouter builds the chi router serving the API.
func NewRouter(d Deps) http.Handler {
	h := &handler{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/api", func(api chi.Router) {
		api.Get("/sessions", h.listSessions)
		api.Get("/sessions/{userID}", h.getSession)
		api.Get("/sessions/{userID}/transitions", h.listTransitions)
		api.Get("/handoffs", h.listHandoffs)
		api.Get("/menu", h.getMenu)
	})

	if d.WebChat != nil {
		path := d.WebChatPath
		if path == "" {
			path = "/ws"
		}
		r.Handle(path, d.WebChat)
	}

	return r
}

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.deps.Version,
	})
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "sessions unavailable")
		return
	}
	filter := dialog.State(r.URL.Query().Get("state"))

	sessions := h.deps.Sessions.List()
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		if filter != "" && s.State != filter {
			continue
		}
		out = append(out, viewOf(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out, "total": len(out)})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "sessions unavailable")
		return
	}
	s, ok := h.deps.Sessions.Get(chi.URLParam(r, "userID"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, viewOf(s))
}

func (h *handler) listTransitions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Transitions == nil {
		respondError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	userID := chi.URLParam(r, "userID")
	records, err := h.deps.Transitions.Recent(r.Context(), userID, limit)
	if err != nil {
		logger.Warn(r.Context(), "http", "journal.read.fail",
			slog.String("user_id", userID),
			slog.String("err", err.Error()),
		)
		respondError(w, http.StatusInternalServerError, "journal read failed")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "transitions": records})
}

func (h *handler) listHandoffs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Handoffs == nil {
		respondError(w, http.StatusServiceUnavailable, "handoff queue disabled")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a number")
		return
	}
	events, total, err := h.deps.Handoffs.Peek(r.Context(), int64(limit))
	if err != nil {
		logger.Warn(r.Context(), "http", "handoffs.read.fail", slog.String("err", err.Error()))
		respondError(w, http.StatusBadGateway, "handoff queue unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events, "total": total})
}

func (h *handler) getMenu(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Catalog == nil || h.deps.Catalog() == nil {
		respondError(w, http.StatusServiceUnavailable, "menu unavailable")
		return
	}
	data, err := menu.Marshal(h.deps.Catalog())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "menu encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// accessLog writes one structured line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.HTTP.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("event", "http.request"),
			slog.String("rid", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}

// Server runs the API on a TCP address.
type Server struct {
	srv *http.Server
}

// NewServer prepares an http.Server for handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("http listening",
			slog.String("event", "http.start"),
			slog.String("addr", s.srv.Addr),
		)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	logger.HTTP.Info("http stopped", slog.String("event", "http.stop"))
	return err
}
