// Package api exposes the tracking pipeline over HTTP: detector frames and
// location fixes come in, live tracks and stored paths go out.
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

	"github.com/banshee-data/geotrack/internal/geometry"
	"github.com/banshee-data/geotrack/internal/geostore"
	"github.com/banshee-data/geotrack/internal/pipeline"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Request body limits. Frames may carry a base64 camera image.
const (
	maxBodyBytes  = 1 << 20
	maxFrameBytes = 16 << 20
)

// FrameProcessor runs frames through the tracker.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, f pipeline.Frame) pipeline.FrameResult
	Latest() pipeline.FrameResult
}

// LocationSink accepts device location fixes.
type LocationSink interface {
	Set(fix geometry.Fix) error
}

type Server struct {
	frames   FrameProcessor
	location LocationSink
	store    geostore.Store
	overlay  http.Handler
}

// NewServer creates a Server. overlay may be nil, in which case /ws is not
// served.
func NewServer(frames FrameProcessor, location LocationSink, store geostore.Store, overlay http.Handler) *Server {
	return &Server{
		frames:   frames,
		location: location,
		store:    store,
		overlay:  overlay,
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

// Hijack lets websocket upgrades pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
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

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/location", s.handleLocation)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/geopoints", s.listGeoPoints)
	mux.HandleFunc("/api/geopoints/", s.getGeoPoint)
	mux.HandleFunc("/api/version", s.showVersion)
	if s.overlay != nil {
		mux.Handle("/ws", s.overlay)
	}
	return mux
}
