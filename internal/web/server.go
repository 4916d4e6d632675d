// Package web serves the JSON HTTP API of the motion monitor.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"motionsense/internal/logging"
	"motionsense/internal/monitor"
	"motionsense/internal/notify"
	"motionsense/internal/store"
)

// Monitor is the part of monitor.Service the API drives.
type Monitor interface {
	Snapshot() monitor.Snapshot
	SetLabel(label string)
	Reset()
	Sync(ctx context.Context) (int, error)
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context) error
}

type EventLister interface {
	List(ctx context.Context, limit int) ([]store.Record, error)
}

type Server struct {
	mon    Monitor
	events EventLister
	hub    *notify.Hub
	logs   *logging.Buffer
	log    *logrus.Entry
}

// New wires the handlers. events, hub and logs may be nil; their routes then answer 404.
func New(mon Monitor, events EventLister, hub *notify.Hub, logs *logging.Buffer) *Server {
	return &Server{mon: mon, events: events, hub: hub, logs: logs, log: logging.New("web")}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Post("/label", s.handleLabel)
		r.Post("/sync", s.handleSync)
		r.Post("/reset", s.handleReset)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/restart", s.handleRestart)
		r.Get("/stream", s.handleStream)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam parses an optional query integer in [1,max].
func intParam(r *http.Request, name string, def, max int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 || v > max {
		return 0, errors.New(name + " must be an integer in [1," + strconv.Itoa(max) + "]")
	}
	return v, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mon.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.NotFound(w, r)
		return
	}
	limit, err := intParam(r, "limit", 50, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := s.events.List(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Warn("list events failed")
		writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": recs})
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label *string `json:"label"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.Label == nil {
		writeError(w, http.StatusBadRequest, `body must be {"label":"..."}`)
		return
	}
	label := strings.TrimSpace(*req.Label)
	s.mon.SetLabel(label)
	writeJSON(w, http.StatusOK, map[string]string{"label": label})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	n, err := s.mon.Sync(ctx)
	switch {
	case errors.Is(err, monitor.ErrSyncDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]any{"synced": n, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]int{"synced": n})
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mon.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// runContext outlives the request: sampling started over HTTP runs until
// /api/stop or until the owner of the monitor closes it.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) writeRunResult(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"active": true})
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.writeRunResult(w, s.mon.Start(runContext(r)))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.writeRunResult(w, s.mon.Restart(runContext(r)))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mon.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// Serve runs the API on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: /api/stream is long-lived.
		IdleTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
