package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/skyfollow/internal/detect"
	"github.com/banshee-data/skyfollow/internal/tracking"
)

// Controller accepts operator commands. The pipeline runtime applies them
// between frames.
type Controller interface {
	StartTracking(ctx context.Context, ephemeralID int64) (tracking.Session, error)
	Clear(ctx context.Context) error
}

// WebServer serves the tracking API and debug charts.
type WebServer struct {
	address    string
	recorder   *Recorder
	controller Controller
	mux        *http.ServeMux
	server     *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address    string
	Recorder   *Recorder
	Controller Controller // nil disables the command endpoints
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:    config.Address,
		recorder:   config.Recorder,
		controller: config.Controller,
	}
	if ws.recorder == nil {
		ws.recorder = NewRecorder(0)
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Mux returns the route table so other packages can attach debug routes.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/tracking/info", ws.handleInfo)
	mux.HandleFunc("/api/tracking/history", ws.handleHistory)
	mux.HandleFunc("/api/tracking/start", ws.handleStart)
	mux.HandleFunc("/api/tracking/clear", ws.handleClear)
	mux.HandleFunc("/debug/tracking/chart", ws.handleChart)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"frames": ws.recorder.Total(),
	})
}

func (ws *WebServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, ws.recorder.Info())
}

// parseLimit reads the optional limit query parameter.
func parseLimit(r *http.Request, def int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", l)
	}
	return n, nil
}

// handleHistory returns recent samples, oldest first.
// Query params:
//
//	limit (optional, default 300, 0 = everything retained)
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, err := parseLimit(r, 300)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ws.recorder.History(limit))
}

type startRequest struct {
	EphemeralID *int64 `json:"ephemeral_id"`
}

// handleStart selects a target by the detector id visible in the latest
// frame. Accepts a JSON body {"ephemeral_id":5} or a form value.
func (ws *WebServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if ws.controller == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tracking control disabled")
		return
	}

	var req startRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
	} else if v := r.FormValue("ephemeral_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(w, fmt.Sprintf("invalid ephemeral_id %q", v))
			return
		}
		req.EphemeralID = &id
	}
	if req.EphemeralID == nil {
		badRequest(w, "missing ephemeral_id")
		return
	}

	sess, err := ws.controller.StartTracking(r.Context(), *req.EphemeralID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sess)
	case errors.Is(err, tracking.ErrNoSuchDetection):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, detect.ErrInvalidDetection):
		badRequest(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusServiceUnavailable, "tracking runtime busy or stopped")
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (ws *WebServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if ws.controller == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "tracking control disabled")
		return
	}
	if err := ws.controller.Clear(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
