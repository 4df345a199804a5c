package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jobrunner/geolayers/internal/adapters/viewport"
	"github.com/jobrunner/geolayers/internal/domain"
)

// ViewportRequest is the body of PUT /viewport. Bounds take precedence over
// center; zoom alone changes only the zoom level.
type ViewportRequest struct {
	Bounds  *domain.Bounds `json:"bounds,omitempty"`
	Padding *int           `json:"padding,omitempty"`
	MaxZoom *int           `json:"maxZoom,omitempty"`
	Animate bool           `json:"animate,omitempty"`
	Center  *domain.LatLng `json:"center,omitempty"`
	Zoom    *float64       `json:"zoom,omitempty"`
}

// ZoomRequest is the body of PUT /viewport/zoom.
type ZoomRequest struct {
	Zoom  *float64 `json:"zoom,omitempty"`
	Delta *float64 `json:"delta,omitempty"`
}

// handleGetViewport returns the last reported view.
func (s *Server) handleGetViewport(w http.ResponseWriter, _ *http.Request) {
	state, err := s.viewport.State()
	connected := err == nil
	if err != nil && !errors.Is(err, domain.ErrNoViewport) {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": connected,
		"center":    state.Center,
		"zoom":      state.Zoom,
	})
}

// handleSetViewport fits bounds or sets the view center and zoom.
func (s *Server) handleSetViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, decodeBodyError(err))
		return
	}

	var err error
	switch {
	case req.Bounds != nil:
		opts := domain.FitOptions{
			Padding: [2]int{domain.DefaultFitPadding, domain.DefaultFitPadding},
			MaxZoom: domain.DefaultFitMaxZoom,
			Animate: req.Animate,
		}
		if req.Padding != nil {
			opts.Padding = [2]int{*req.Padding, *req.Padding}
		}
		if req.MaxZoom != nil {
			opts.MaxZoom = *req.MaxZoom
		}
		err = s.viewport.FitBounds(*req.Bounds, opts)
	case req.Center != nil:
		if verr := validateCenter(*req.Center); verr != nil {
			s.handleError(w, verr)
			return
		}
		zoom, zerr := s.viewport.GetZoom()
		if req.Zoom != nil {
			zoom, zerr = *req.Zoom, nil
		}
		if zerr != nil {
			s.handleError(w, zerr)
			return
		}
		if verr := validateZoom(zoom); verr != nil {
			s.handleError(w, verr)
			return
		}
		err = s.viewport.SetView(*req.Center, zoom)
	case req.Zoom != nil:
		if verr := validateZoom(*req.Zoom); verr != nil {
			s.handleError(w, verr)
			return
		}
		err = s.viewport.SetZoom(*req.Zoom)
	default:
		s.handleError(w, &domain.ValidationError{
			Field:      "body",
			Constraint: "bounds, center or zoom",
			Message:    "one of bounds, center or zoom is required",
		})
		return
	}

	if err != nil {
		s.handleError(w, err)
		return
	}
	s.handleGetViewport(w, r)
}

// handleZoom sets an absolute zoom or changes it by a delta.
func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req ZoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, decodeBodyError(err))
		return
	}

	var err error
	switch {
	case req.Delta != nil:
		err = s.viewport.ZoomBy(*req.Delta)
	case req.Zoom != nil:
		if verr := validateZoom(*req.Zoom); verr != nil {
			s.handleError(w, verr)
			return
		}
		err = s.viewport.SetZoom(*req.Zoom)
	default:
		err = &domain.ValidationError{
			Field:      "body",
			Constraint: "zoom or delta",
			Message:    "zoom or delta is required",
		}
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.handleGetViewport(w, r)
}

// handleResetView fits the view to the pipeline layer or the default view.
func (s *Server) handleResetView(w http.ResponseWriter, r *http.Request) {
	if err := s.viewport.ResetView(s.layers); err != nil {
		s.handleError(w, err)
		return
	}
	s.handleGetViewport(w, r)
}

// handleViewportSocket mounts a map client. The session becomes the current
// viewport until it disconnects.
func (s *Server) handleViewportSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	initial, _ := s.viewport.State()
	session := viewport.NewSession(conn, initial, s.logger.With("component", "viewport"))

	events := s.layers.Subscribe()
	defer s.layers.Unsubscribe(events)

	s.viewport.SetViewport(session)
	defer s.viewport.ClearViewport(session)

	go func() {
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				session.Notify(e)
			case <-session.Done():
				return
			}
		}
	}()

	s.logger.Info("map client connected", "session", session.ID(), "remote_addr", r.RemoteAddr)
	session.Run(s.ctx, func(msg viewport.ClientMessage) {
		if msg.Type == viewport.TypeMounted && msg.LayerID != "" {
			s.layers.AcknowledgeMounted(msg.LayerID)
		}
	})
	s.logger.Info("map client disconnected", "session", session.ID())
}

func validateZoom(zoom float64) error {
	if zoom < 0 || zoom > domain.MaxZoomLevel {
		return &domain.ValidationError{
			Field:      "zoom",
			Value:      zoom,
			Constraint: "0 <= zoom <= 18",
			Message:    "zoom out of range",
		}
	}
	return nil
}

func validateCenter(c domain.LatLng) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return &domain.ValidationError{
			Field:      "center",
			Value:      c,
			Constraint: "lat in [-90, 90], lng in [-180, 180]",
			Message:    "center out of range",
		}
	}
	return nil
}
