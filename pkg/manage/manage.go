// Package manage provides HTTP handlers for geotagging photos from a remote map.
package manage

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"k8s.io/klog/v2"

	"github.com/tstromberg/geotagger/pkg/geotag"
	"github.com/tstromberg/geotagger/pkg/session"
)

// Server is a server for the geotagger web API.
type Server struct {
	s   *session.Session
	rec *session.Recorder
}

// New creates a new server. rec should be the View the session reports to.
func New(s *session.Session, rec *session.Recorder) *Server {
	return &Server{s: s, rec: rec}
}

// Router returns the routes served by s.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/photos", s.PhotosHandler())
	r.Get("/api/map", s.MapHandler())
	r.Get("/api/config", s.ConfigHandler())
	r.Post("/api/load", s.LoadHandler())
	r.Post("/api/select", s.SelectHandler())
	r.Post("/api/click", s.ClickHandler())
	r.Post("/api/zoom", s.ZoomHandler())
	r.Post("/api/copy", s.CopyHandler())
	r.Post("/api/paste", s.PasteHandler())
	r.Post("/api/save", s.SaveHandler())
	r.Post("/api/clear", s.ClearHandler())
	r.Get("/thumbs/{label}", s.ThumbHandler())
	return r
}

// PhotosHandler lists the loaded photos.
func (s *Server) PhotosHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"photos":   s.s.Photos(),
			"pending":  s.s.Pending(),
			"scanning": s.s.Scanning(),
		})
	}
}

// MapHandler returns what the map should show.
func (s *Server) MapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.rec.Snapshot())
	}
}

// ConfigHandler returns the map defaults.
func (s *Server) ConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.s.Config())
	}
}

type loadRequest struct {
	Path string `json:"path"`
	// Pending is "save" or "discard"; anything else cancels when there are unsaved positions.
	Pending string `json:"pending"`
}

// LoadHandler starts loading photos from a directory or file.
func (s *Server) LoadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if !readJSON(w, r, &req) {
			return
		}
		if req.Path == "" {
			writeError(w, http.StatusBadRequest, errors.New("path is required"))
			return
		}

		choice := session.Cancel
		switch req.Pending {
		case "save":
			choice = session.Save
		case "discard":
			choice = session.Discard
		}

		if err := s.s.Load(req.Path, session.Answers{Choice: choice}.Choose); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"loading": req.Path})
	}
}

type selectRequest struct {
	Labels []string `json:"labels"`
}

// SelectHandler sets the selected photos.
func (s *Server) SelectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if !readJSON(w, r, &req) {
			return
		}
		if err := s.s.Select(req.Labels); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"selected": s.s.Selected()})
	}
}

type clickRequest struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Replace bool    `json:"replace"`
}

// ClickHandler assigns a clicked map position to the selected photos.
func (s *Server) ClickHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clickRequest
		if !readJSON(w, r, &req) {
			return
		}
		applied, err := s.s.Click(req.Lat, req.Lon, func(string, geotag.Coordinate) bool { return req.Replace })
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"applied": nonNil(applied)})
	}
}

type zoomRequest struct {
	Zoom int `json:"zoom"`
}

// ZoomHandler records the map zoom level.
func (s *Server) ZoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req zoomRequest
		if !readJSON(w, r, &req) {
			return
		}
		if err := s.s.Zoom(req.Zoom); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CopyHandler copies the position of the selected photo.
func (s *Server) CopyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c, ok, err := s.s.Copy()
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"copied": false, "status": s.rec.Snapshot().Status})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"copied": true, "coord": c})
	}
}

// PasteHandler pastes the copied position onto the selected photos.
func (s *Server) PasteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		applied, err := s.s.Paste()
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"applied": nonNil(applied)})
	}
}

// SaveHandler writes pending positions to the photos.
func (s *Server) SaveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rep, err := s.s.Save()
		if errors.Is(err, session.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		code := http.StatusOK
		if err != nil {
			klog.Errorf("save: %v", err)
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, rep)
	}
}

// ClearHandler forgets the loaded photos.
func (s *Server) ClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := s.s.Clear(); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ThumbHandler serves the thumbnail of a photo.
func (s *Server) ThumbHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label := chi.URLParam(r, "label")
		p, ok := s.s.Thumb(label)
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, p)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, geotag.ErrUnknownLabel):
		return http.StatusNotFound
	case errors.Is(err, geotag.ErrOutOfRange), errors.Is(err, os.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, geotag.ErrScanInProgress),
		errors.Is(err, geotag.ErrEmptyClipboard),
		errors.Is(err, session.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Errorf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	klog.V(1).Infof("request failed (%d): %v", code, err)
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func nonNil(ls []string) []string {
	if ls == nil {
		return []string{}
	}
	return ls
}
