// Package api exposes the monitoring status and violation history over
// HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/curbsight/curbsight/internal/geom"
	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/store"
	"github.com/curbsight/curbsight/internal/traffic"
)

// defaultViolationLimit caps /api/violations when no limit is given.
const defaultViolationLimit = 50

// Server serves the status API for one pipeline.
type Server struct {
	pipeline *traffic.Pipeline
	store    *store.Store // nil when persistence is disabled
	zones    *traffic.ZoneIndex
}

// NewServer creates a server over the pipeline. store may be nil; the
// violations endpoint then serves the in-memory recent history only.
func NewServer(pipeline *traffic.Pipeline, st *store.Store, zones *traffic.ZoneIndex) *Server {
	return &Server{pipeline: pipeline, store: st, zones: zones}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %vms",
			lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/violations", s.listViolations)
	mux.HandleFunc("/api/zones", s.listZones)
	mux.HandleFunc("/api/reset", s.resetPipeline)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := json.NewEncoder(w).Encode(s.pipeline.Status()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

func (s *Server) listViolations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultViolationLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	typeFilter := r.URL.Query().Get("type")

	if s.store == nil {
		recent := s.pipeline.Status().Recent
		if typeFilter != "" {
			recent = lo.Filter(recent, func(v traffic.Violation, _ int) bool {
				return string(v.Type) == typeFilter
			})
		}
		if len(recent) > limit {
			recent = recent[len(recent)-limit:]
		}
		if err := json.NewEncoder(w).Encode(recent); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write violations")
		}
		return
	}

	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve violations: %v", err))
		return
	}
	if typeFilter != "" {
		recs = lo.Filter(recs, func(rec store.Record, _ int) bool {
			return rec.Type == typeFilter
		})
	}
	if recs == nil {
		recs = []store.Record{}
	}
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write violations")
	}
}

// zoneAPI is the wire form of a configured zone.
type zoneAPI struct {
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	Direction string       `json:"direction"`
	Polygon   geom.Polygon `json:"polygon"`
}

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zones := lo.Map(s.zones.Zones(), func(z traffic.Zone, _ int) zoneAPI {
		return zoneAPI{
			Name:      z.Name,
			Category:  string(z.Category),
			Direction: string(z.Direction),
			Polygon:   z.Polygon,
		}
	})
	if err := json.NewEncoder(w).Encode(zones); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write zones")
	}
}

func (s *Server) resetPipeline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.pipeline.Reset()
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
