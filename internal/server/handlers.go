package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/buttonstudio/internal/components"
	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/studio"
	"github.com/conneroisu/buttonstudio/internal/version"
)

type direction int

const (
	directionUp direction = iota
	directionDown
)

func (d direction) String() string {
	if d == directionUp {
		return "increment"
	}
	return "decrement"
}

// CounterResponse is the JSON body of the counter endpoints.
type CounterResponse struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// AudioResponse is the JSON body of the audio endpoints.
type AudioResponse struct {
	Status    studio.AudioStatus `json:"status"`
	Recording bool               `json:"recording"`
}

// ManifestResponse is the JSON body of /api/manifest.
type ManifestResponse struct {
	Routes  []string         `json:"routes"`
	Islands []string         `json:"islands"`
	Entries []manifest.Entry `json:"entries"`
	Stale   bool             `json:"stale"`
}

// ErrorResponse is returned by the JSON endpoints on failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) page(title string, body templ.Component) templ.Component {
	return components.AppShell(title, s.dev, body)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	counter, err := s.studio.Counter(studio.DefaultCounterID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, s.page(s.config.Studio.Title, components.Home(components.HomeProps{
		Title:     s.config.Studio.Title,
		CounterID: counter.ID,
		Count:     counter.Value(),
		Audio:     s.studio.Audio(),
	})))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, s.page("404 - Page not found", components.NotFound(r.URL.Path)))
}

// currentManifest returns the last dev-mode generation, or collects afresh
// when no watcher keeps it current. The flag reports a manifest file that
// differs from the collected tree.
func (s *Server) currentManifest(ctx context.Context) (*manifest.Manifest, bool, error) {
	if s.dev {
		if last, ok := s.pipeline.Last(); ok {
			return last.Manifest, false, last.Error
		}
	}
	result := s.pipeline.Run(ctx)
	return result.Manifest, result.Changed, result.Error
}

func (s *Server) handleManifestPage(w http.ResponseWriter, r *http.Request) {
	m, _, err := s.currentManifest(r.Context())
	if err != nil {
		s.render(w, r, http.StatusOK, s.page("Manifest", components.ManifestError(err.Error())))
		return
	}
	s.render(w, r, http.StatusOK, s.page("Manifest", components.ManifestTable(manifest.Entries(m))))
}

func (s *Server) handleManifestJSON(w http.ResponseWriter, r *http.Request) {
	m, stale, err := s.currentManifest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ManifestResponse{
		Routes:  m.Routes,
		Islands: m.Islands,
		Entries: manifest.Entries(m),
		Stale:   stale,
	})
}

func (s *Server) handleCounterGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := studio.ValidateCounterID(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	counter, err := s.studio.Lookup(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CounterResponse{ID: id, Value: counter.Value()})
}

func (s *Server) handleCounterStep(d direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var (
			value int
			err   error
		)
		if d == directionUp {
			value, err = s.studio.Increment(id)
		} else {
			value, err = s.studio.Decrement(id)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.metrics.CounterChanges.WithLabelValues(d.String()).Inc()
		writeJSON(w, http.StatusOK, CounterResponse{ID: id, Value: value})
	}
}

func (s *Server) handleAudioGet(w http.ResponseWriter, r *http.Request) {
	status := s.studio.Audio()
	writeJSON(w, http.StatusOK, AudioResponse{Status: status, Recording: status.IsRecording()})
}

func (s *Server) handleAudioToggle(w http.ResponseWriter, r *http.Request) {
	status := s.studio.ToggleAudio()
	s.metrics.AudioToggles.Inc()
	writeJSON(w, http.StatusOK, AudioResponse{Status: status, Recording: status.IsRecording()})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	manifestCheck := map[string]interface{}{"status": "healthy"}
	if last, ok := s.pipeline.Last(); ok && last.Error != nil {
		manifestCheck = map[string]interface{}{"status": "degraded", "message": last.Error.Error()}
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks": map[string]interface{}{
			"server":    map[string]interface{}{"status": "healthy", "message": "HTTP server operational"},
			"manifest":  manifestCheck,
			"websocket": map[string]interface{}{"status": "healthy", "clients": s.hub.Count()},
			"studio":    map[string]interface{}{"status": "healthy", "counters": len(s.studio.Counters())},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// writeError maps a StudioError code onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := ""

	var se *errors.StudioError
	if errors.As(err, &se) {
		code = se.Code
		switch se.Code {
		case errors.ErrCodeCounterNotFound:
			status = http.StatusNotFound
		case errors.ErrCodeRouteConflict:
			status = http.StatusConflict
		case errors.ErrCodeCounterLimit:
			status = http.StatusTooManyRequests
		default:
			if se.Type == errors.ErrorTypeValidation {
				status = http.StatusBadRequest
			}
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed",
			"path", r.URL.Path,
			"root_cause", errors.GetRootCause(err).Error())
	}

	message := err.Error()
	var conflict *manifest.RouteConflictError
	if errors.As(err, &conflict) {
		message = conflict.Error()
	}

	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
