package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geolayers/internal/application"
	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
)

// multipartMemory is the in-memory part of a parsed upload; larger files
// spill to temporary files.
const multipartMemory = 32 << 20

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)

// CreateVectorRequest is the body of POST /layers/vector.
type CreateVectorRequest struct {
	Name    string          `json:"name"`
	Color   string          `json:"color,omitempty"`
	Visible *bool           `json:"visible,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// OpacityRequest is the body of PUT /layers/raster/{id}/opacity.
type OpacityRequest struct {
	Opacity *float64 `json:"opacity"`
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":             boolToStatus(details.Healthy),
		"ready":              details.Ready,
		"vector_layers":      details.VectorLayers,
		"raster_layers":      details.RasterLayers,
		"viewport_connected": details.ViewportConnected,
		"components":         details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListLayers returns summaries of both layer collections.
func (s *Server) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	vectors := s.layers.VectorLayers()
	rasters := s.layers.RasterLayers()

	vectorOut := make([]map[string]interface{}, len(vectors))
	for i := range vectors {
		vectorOut[i] = formatVectorSummary(&vectors[i])
	}
	rasterOut := make([]map[string]interface{}, len(rasters))
	for i := range rasters {
		rasterOut[i] = formatRasterSummary(&rasters[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"vector": vectorOut,
		"raster": rasterOut,
		"count":  len(vectors) + len(rasters),
	})
}

// handleUpload ingests a multipart file upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.handleError(w, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.handleError(w, err)
		return
	}

	color := strings.TrimSpace(r.FormValue("color"))
	if err := validateColor(color); err != nil {
		s.handleError(w, err)
		return
	}

	result, err := s.ingest.Ingest(r.Context(), input.IngestRequest{
		Filename: header.Filename,
		Data:     data,
		Name:     r.FormValue("name"),
		Color:    color,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}

	response := map[string]interface{}{
		"kind":     result.Kind,
		"layer_id": result.LayerID(),
	}
	switch {
	case result.Vector != nil:
		response["layer"] = formatVectorSummary(result.Vector)
	case result.Raster != nil:
		response["layer"] = formatRasterSummary(result.Raster)
	}
	s.writeJSON(w, http.StatusCreated, response)
}

// handleCreateVector adds a vector layer from a JSON body.
func (s *Server) handleCreateVector(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	var req CreateVectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, decodeBodyError(err))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.handleError(w, &domain.ValidationError{
			Field:      "name",
			Value:      req.Name,
			Constraint: "required",
			Message:    "layer name is required",
		})
		return
	}
	if err := validateColor(req.Color); err != nil {
		s.handleError(w, err)
		return
	}
	if len(req.Data) == 0 {
		s.handleError(w, &domain.ValidationError{
			Field:      "data",
			Constraint: "required",
			Message:    "GeoJSON data is required",
		})
		return
	}

	data, err := domain.ParseFeatureData(req.Data)
	if err != nil {
		s.handleError(w, err)
		return
	}

	layer := s.layers.AddVectorLayer(domain.VectorLayerInput{
		Name:   name,
		Data:   data,
		Hidden: req.Visible != nil && !*req.Visible,
		Color:  req.Color,
	}, s.viewport.Viewport())

	s.writeJSON(w, http.StatusCreated, formatVectorSummary(&layer))
}

// handleGetVector returns a vector layer including its data.
func (s *Server) handleGetVector(w http.ResponseWriter, r *http.Request) {
	layer, ok := s.layers.VectorLayer(mux.Vars(r)["id"])
	if !ok {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, layer)
}

// handleDeleteVector removes a vector layer. The pipeline layer is refused.
func (s *Server) handleDeleteVector(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == domain.PipelineLayerID {
		s.handleError(w, domain.ErrReservedLayer)
		return
	}
	if !s.layers.RemoveVectorLayer(id) {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleVector flips the visibility of a vector layer.
func (s *Server) handleToggleVector(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.layers.ToggleVectorVisibility(id) {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	layer, _ := s.layers.VectorLayer(id)
	s.writeJSON(w, http.StatusOK, formatVectorSummary(&layer))
}

// handleZoomToVector fits the mounted viewport to a vector layer.
func (s *Server) handleZoomToVector(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.layers.VectorLayer(id); !ok {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	vp := s.viewport.Viewport()
	if vp == nil {
		s.handleError(w, domain.ErrNoViewport)
		return
	}

	issued := s.layers.ZoomToVectorLayer(id, vp)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer_id": id,
		"issued":   issued,
	})
}

// handleMounted acknowledges that the renderer has drawn a vector layer.
func (s *Server) handleMounted(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.layers.VectorLayer(id); !ok {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layer_id":     id,
		"acknowledged": s.layers.AcknowledgeMounted(id),
	})
}

// handleGetRaster returns a raster layer including its image.
func (s *Server) handleGetRaster(w http.ResponseWriter, r *http.Request) {
	layer, ok := s.layers.RasterLayer(mux.Vars(r)["id"])
	if !ok {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, layer)
}

// handleDeleteRaster removes a raster layer.
func (s *Server) handleDeleteRaster(w http.ResponseWriter, r *http.Request) {
	if !s.layers.RemoveRasterLayer(mux.Vars(r)["id"]) {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleRaster flips the visibility of a raster layer.
func (s *Server) handleToggleRaster(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.layers.ToggleRasterVisibility(id) {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	layer, _ := s.layers.RasterLayer(id)
	s.writeJSON(w, http.StatusOK, formatRasterSummary(&layer))
}

// handleSetOpacity sets the opacity of a raster layer. Values outside
// [0, 1] are clamped by the store.
func (s *Server) handleSetOpacity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req OpacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.handleError(w, decodeBodyError(err))
		return
	}
	if req.Opacity == nil {
		s.handleError(w, &domain.ValidationError{
			Field:      "opacity",
			Constraint: "required",
			Message:    "opacity is required",
		})
		return
	}

	if !s.layers.SetRasterOpacity(id, *req.Opacity) {
		s.handleError(w, domain.ErrLayerNotFound)
		return
	}
	layer, _ := s.layers.RasterLayer(id)
	s.writeJSON(w, http.StatusOK, formatRasterSummary(&layer))
}

// handleScene returns the renderer contract.
func (s *Server) handleScene(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scene.BuildScene())
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := loadOpenAPI()
	if err != nil {
		s.logger.Error("failed to load OpenAPI document", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, http.StatusNotFound, "Sync service not available")
		return
	}

	result, err := s.sync.TriggerSync(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// formatVectorSummary formats a vector layer without its feature payload.
func formatVectorSummary(l *domain.VectorLayer) map[string]interface{} {
	return map[string]interface{}{
		"id":            l.ID,
		"name":          l.Name,
		"visible":       l.Visible,
		"color":         l.Color,
		"feature_count": l.Data.FeatureCount(),
		"bounds":        l.Bounds(),
		"uploaded_at":   l.UploadedAt.UTC().Format(time.RFC3339),
	}
}

// formatRasterSummary formats a raster layer without its image payload.
func formatRasterSummary(l *domain.RasterLayer) map[string]interface{} {
	out := map[string]interface{}{
		"id":          l.ID,
		"name":        l.Name,
		"visible":     l.Visible,
		"opacity":     l.Opacity,
		"bounds":      l.Bounds,
		"uploaded_at": l.UploadedAt.UTC().Format(time.RFC3339),
	}
	if l.Metadata != nil {
		out["metadata"] = l.Metadata
	}
	return out
}

func validateColor(color string) error {
	if color == "" || colorPattern.MatchString(color) {
		return nil
	}
	return &domain.ValidationError{
		Field:      "color",
		Value:      color,
		Constraint: "#RRGGBB or #RRGGBBAA",
		Message:    "invalid color",
	}
}

// decodeBodyError wraps request body decode failures. Oversized bodies keep
// their *http.MaxBytesError so they map to 413.
func decodeBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return &domain.ValidationError{
		Field:      "body",
		Constraint: "valid JSON",
		Message:    err.Error(),
	}
}

// handleError maps domain errors to HTTP status codes. DecodeError is
// checked before FormatError since malformed GeoJSON carries both.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	var (
		maxErr         *http.MaxBytesError
		unsupportedErr *domain.UnsupportedFormatError
		decodeErr      *domain.DecodeError
		formatErr      *domain.FormatError
		validationErr  *domain.ValidationError
		renderErr      *domain.RenderError
		limited        *application.RateLimitError
	)

	switch {
	case errors.As(err, &maxErr):
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &unsupportedErr):
		s.writeError(w, http.StatusUnsupportedMediaType, unsupportedErr.Error())
	case errors.As(err, &decodeErr):
		s.writeError(w, http.StatusBadRequest, decodeErr.Error())
	case errors.As(err, &formatErr):
		s.writeError(w, http.StatusUnprocessableEntity, formatErr.Error())
	case errors.As(err, &validationErr):
		s.writeError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &renderErr):
		s.logger.Error("render error", "error", err)
		s.writeError(w, http.StatusInternalServerError, renderErr.Error())
	case errors.Is(err, domain.ErrLayerNotFound):
		s.writeError(w, http.StatusNotFound, "Layer not found")
	case errors.Is(err, domain.ErrReservedLayer):
		s.writeError(w, http.StatusForbidden, "The pipeline layer cannot be deleted")
	case errors.Is(err, domain.ErrNoViewport), errors.Is(err, domain.ErrViewportClosed):
		s.writeError(w, http.StatusConflict, "No map viewport is mounted")
	case errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs))
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
