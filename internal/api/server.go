// Package api exposes the session upload and query endpoints. It is a
// thin consumer of the ingestion pipeline and the store; all telemetry
// semantics live in those packages.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-data/trackside/internal/httputil"
	"github.com/gridline-data/trackside/internal/ingest"
	"github.com/gridline-data/trackside/internal/store"
	"github.com/gridline-data/trackside/internal/version"
)

// ANSI escape codes for request log colouring.
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxUploadBytes bounds the multipart form held in memory per upload.
const maxUploadBytes = 64 << 20

// Server handles session uploads and queries.
type Server struct {
	store    *store.Store
	pipeline *ingest.Pipeline
}

// NewServer creates a server ingesting into st.
func NewServer(st *store.Store) *Server {
	return &Server{
		store:    st,
		pipeline: ingest.New(st),
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

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
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
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/upload", s.uploadSession)
	mux.HandleFunc("/api/sessions/stats", s.sessionStats)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// uploadSession accepts a gzip session log plus session-level form
// fields, replays it through the ingestion pipeline, and persists the
// session. Rejected lines never fail the upload; only an unreadable
// container does.
func (s *Server) uploadSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	meta := ingest.Metadata{
		DriverName: r.FormValue("driver_name"),
		Car:        r.FormValue("car"),
		Track:      r.FormValue("track"),
	}
	if v := r.FormValue("duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			httputil.BadRequest(w, "invalid duration: "+err.Error())
			return
		}
		meta.DurationS = d
	}

	sessionID := uuid.NewString()
	if err := s.store.CreateSession(r.Context(), store.Session{
		ID:         sessionID,
		DriverName: meta.DriverName,
		Car:        meta.Car,
		Track:      meta.Track,
		DurationS:  meta.DurationS,
	}); err != nil {
		log.Printf("failed to create session for %s: %v", header.Filename, err)
		httputil.InternalServerError(w, "failed to create session")
		return
	}

	summary, err := s.pipeline.Ingest(r.Context(), file, sessionID, meta)
	if err != nil {
		log.Printf("ingest of %s failed: %v", header.Filename, err)
		// A rejected container commits nothing, so drop the session row
		// rather than leave an empty orphan in the listing. Sessions that
		// already own committed batches are kept.
		if n, cntErr := s.store.SampleCount(r.Context(), sessionID); cntErr == nil && n == 0 {
			if delErr := s.store.DeleteSession(r.Context(), sessionID); delErr != nil {
				log.Printf("failed to delete session %s after ingest failure: %v", sessionID, delErr)
			}
		}
		httputil.BadRequest(w, "could not ingest "+header.Filename+": "+err.Error())
		return
	}

	// Persist whatever metadata the pipeline inferred from the log.
	final := summary.Metadata
	if err := s.store.UpdateSessionMetadata(r.Context(), sessionID, final.DriverName, final.Car, final.Track, final.DurationS); err != nil {
		log.Printf("failed to update session metadata: %v", err)
	}

	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		log.Printf("failed to list sessions: %v", err)
		httputil.InternalServerError(w, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

func (s *Server) sessionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing id parameter")
		return
	}
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		httputil.NotFound(w, "unknown session "+id)
		return
	}
	stats, err := s.store.SessionStats(r.Context(), id)
	if err != nil {
		log.Printf("failed to compute stats for %s: %v", id, err)
		httputil.InternalServerError(w, "failed to compute session stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
