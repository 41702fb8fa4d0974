package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/geotrack/internal/detection"
	"github.com/banshee-data/geotrack/internal/geometry"
	"github.com/banshee-data/geotrack/internal/geostore"
	"github.com/banshee-data/geotrack/internal/httputil"
	"github.com/banshee-data/geotrack/internal/pipeline"
	"github.com/banshee-data/geotrack/internal/version"
)

// frameRequest is the body of POST /api/frames. A location, when present,
// is recorded before the frame is processed.
type frameRequest struct {
	pipeline.Frame
	Location *geometry.Fix `json:"location,omitempty"`
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req frameRequest
	if err := httputil.DecodeJSON(w, r, &req, maxFrameBytes); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if !detection.ValidFrameSize(req.Width, req.Height) {
		httputil.BadRequest(w, fmt.Sprintf("width and height must be in (0, %d]", detection.MaxFrameDimension))
		return
	}
	if req.Location != nil {
		if err := s.location.Set(*req.Location); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}

	httputil.WriteJSONOK(w, s.frames.ProcessFrame(r.Context(), req.Frame))
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var fix geometry.Fix
	if err := httputil.DecodeJSON(w, r, &fix, maxBodyBytes); err != nil {
		httputil.DecodeError(w, err)
		return
	}
	if err := s.location.Set(fix); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, fix)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.frames.Latest())
}

func (s *Server) listGeoPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list geopoints")
		return
	}
	if records == nil {
		records = []geostore.Record{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) getGeoPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/geopoints/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "geopoint not found")
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, geostore.ErrNotFound) {
		httputil.NotFound(w, "geopoint not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load geopoint")
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
