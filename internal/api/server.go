// Package api serves the station's HTTP surface: the MJPEG feed of
// annotated frames, status JSON and the debug cycle charts.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/cartonguide/internal/calibration"
	"github.com/banshee-data/cartonguide/internal/framebuf"
	"github.com/banshee-data/cartonguide/internal/httputil"
	"github.com/banshee-data/cartonguide/internal/pipeline"
	"github.com/banshee-data/cartonguide/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Station describes the configured hardware and the loaded calibration
// tables for the status endpoint.
type Station struct {
	RobotType  string                      `json:"robot_type"`
	CameraType string                      `json:"camera_type"`
	DevMode    bool                        `json:"dev_mode"`
	Bands      []calibration.HeightBand    `json:"bands,omitempty"`
	Profiles   []calibration.CartonProfile `json:"profiles,omitempty"`
}

type Server struct {
	frames  *framebuf.Mailbox[framebuf.Frame]
	stats   *pipeline.Stats
	counter pipeline.Counter
	station Station
}

func NewServer(frames *framebuf.Mailbox[framebuf.Frame], stats *pipeline.Stats, counter pipeline.Counter, station Station) *Server {
	return &Server{
		frames:  frames,
		stats:   stats,
		counter: counter,
		station: station,
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
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
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

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", s.streamFeed)
	mux.HandleFunc("/api/frame.jpg", s.latestFrame)
	mux.HandleFunc("/api/status", s.showStatus)
	s.AttachDebugRoutes(mux)
	return mux
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version     string                `json:"version"`
	Station     Station               `json:"station"`
	Picked      int64                 `json:"picked"`
	Cycles      uint64                `json:"cycles"`
	Publishes   uint64                `json:"publishes"`
	MeanCycleMs float64               `json:"mean_cycle_ms"`
	Last        *pipeline.CycleResult `json:"last,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}

	picked, err := s.counter.PickCount()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read pick count: %v", err)
		return
	}
	cycles, publishes := s.stats.Totals()
	resp := StatusResponse{
		Version:     version.String(),
		Station:     s.station,
		Picked:      picked,
		Cycles:      cycles,
		Publishes:   publishes,
		MeanCycleMs: float64(s.stats.MeanLatency()) / float64(time.Millisecond),
	}
	if last, ok := s.stats.Last(); ok {
		resp.Last = &last
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
