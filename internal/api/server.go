// Package api is the operator-facing HTTP and WebSocket gateway.
package api

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/navmap/internal/db"
	"github.com/banshee-data/navmap/internal/mapstate"
	"github.com/banshee-data/navmap/internal/monitoring"
	"github.com/banshee-data/navmap/internal/robot"
	"github.com/banshee-data/navmap/internal/telemetry"
	"github.com/banshee-data/navmap/internal/timeutil"
)

var logf = monitoring.Component("API")

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Journal records operator commands.
type Journal interface {
	RecordCommand(ctx context.Context, kind string, payload any, outcome string, at time.Time) (db.CommandRecord, error)
	RecentCommands(ctx context.Context, limit int) ([]db.CommandRecord, error)
}

// Options holds the server's collaborators. Journal may be nil.
type Options struct {
	Maps         *mapstate.Manager
	State        *telemetry.State
	Hub          *telemetry.Hub
	Sink         robot.CommandSink
	Journal      Journal
	Clock        timeutil.Clock
	HistoryLimit int
}

type Server struct {
	maps         *mapstate.Manager
	state        *telemetry.State
	hub          *telemetry.Hub
	sink         robot.CommandSink
	journal      Journal
	clock        timeutil.Clock
	historyLimit int
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Server{
		maps:         opts.Maps,
		state:        opts.State,
		hub:          opts.Hub,
		sink:         opts.Sink,
		journal:      opts.Journal,
		clock:        opts.Clock,
		historyLimit: opts.HistoryLimit,
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

// Hijack lets WebSocket upgrades take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
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

// CORSMiddleware allows every origin, as browser operator consoles are
// served from arbitrary hosts.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/set_pose/", s.handleSetPose)
	mux.HandleFunc("/set_nav_goal/", s.handleSetNavGoal)
	mux.HandleFunc("/set_walls/", s.handleSetWalls)
	mux.HandleFunc("/clear_walls/", s.handleClearWalls)
	mux.HandleFunc("/get_sim_pose", s.handleGetSimPose)
	mux.HandleFunc("/map_info", s.handleMapInfo)
	mux.HandleFunc("/map_image", s.handleMapImage)
	mux.HandleFunc("/map_bitmap", s.handleMapBitmap)
	mux.HandleFunc("/walls", s.handleGetWalls)
	mux.HandleFunc("/api/commands", s.handleCommands)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws/robot_data", s.handleTelemetryStream)
	mux.HandleFunc("/ws/notify", s.handleNotifyStream)
	return mux
}

// Handler returns the full route set wrapped in CORS and access logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(CORSMiddleware(s.ServeMux()))
}
