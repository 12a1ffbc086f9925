// Package api exposes the safety layer over HTTP: motion and textual
// command ingestion, emergency stop and resume, live state inspection, and
// the telemetry decision log. Handlers only ever talk to the ingestion
// gateway and the override; nothing here can bypass arbitration.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/command"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/control"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/httputil"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/telemetry"
)

// ANSI escape codes for request log colouring.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// LoopState exposes the control loop's most recent tick.
type LoopState interface {
	Last() (control.Snapshot, bool)
}

// DecisionLog exposes the persisted decision history.
type DecisionLog interface {
	SessionID() string
	RecentDecisions(limit int) ([]telemetry.DecisionRecord, error)
}

// Server holds the API's collaborators. Log and Hub may be nil when
// telemetry or the websocket relay are disabled.
type Server struct {
	gateway  *command.Gateway
	override *safety.Override
	loop     LoopState
	log      DecisionLog
	hub      *Hub
}

// NewServer builds a Server. gateway, override and loop are required.
func NewServer(gateway *command.Gateway, override *safety.Override, loop LoopState, log DecisionLog, hub *Hub) *Server {
	return &Server{
		gateway:  gateway,
		override: override,
		loop:     loop,
		log:      log,
		hub:      hub,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/motion", s.handleMotion)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/decisions", s.handleDecisions)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

type motionRequest struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

func (s *Server) handleMotion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req motionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.gateway.HandleMotion(req.Left, req.Right)
	httputil.WriteJSONOK(w, map[string]string{"status": "accepted"})
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req commandRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.gateway.HandleText(req.Command); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":  "accepted",
		"engaged": s.override.Engaged(),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.override.Trigger()
	httputil.WriteJSONOK(w, map[string]bool{"engaged": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.override.Clear()
	httputil.WriteJSONOK(w, map[string]bool{"engaged": false})
}

type stateResponse struct {
	Engaged  bool              `json:"engaged"`
	Observed bool              `json:"observed"`
	Snapshot *control.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := stateResponse{Engaged: s.override.Engaged()}
	if snap, ok := s.loop.Last(); ok {
		resp.Observed = true
		resp.Snapshot = &snap
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.log == nil {
		httputil.NotFound(w, "telemetry disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.log.RecentDecisions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id": s.log.SessionID(),
		"decisions":  recs,
	})
}
