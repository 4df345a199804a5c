package application

import (
	"fmt"
	"sort"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
)

// SceneService derives what a renderer draws from the layer store. It never
// mutates the store.
type SceneService struct {
	store input.LayerStore
}

// NewSceneService creates a scene service.
func NewSceneService(store input.LayerStore) *SceneService {
	return &SceneService{store: store}
}

// BuildScene returns visible vector layers with data and visible raster
// layers with an image, both in store order.
func (s *SceneService) BuildScene() domain.Scene {
	scene := domain.Scene{
		Vectors: []domain.VectorDrawable{},
		Rasters: []domain.RasterOverlay{},
	}

	for _, l := range s.store.VectorLayers() {
		if !l.Visible || !l.HasData() {
			continue
		}
		scene.Vectors = append(scene.Vectors, vectorDrawable(l))
	}

	for _, l := range s.store.RasterLayers() {
		if !l.Visible || !l.HasImage() {
			continue
		}
		scene.Rasters = append(scene.Rasters, domain.RasterOverlay{
			LayerID:  l.ID,
			Name:     l.Name,
			Bounds:   l.Bounds,
			ImageURL: l.ImageURL,
			Opacity:  l.Opacity,
			ZIndex:   domain.RasterZIndex,
		})
	}

	return scene
}

func vectorDrawable(l domain.VectorLayer) domain.VectorDrawable {
	color := l.Color
	if color == "" {
		color = domain.DefaultLayerColor
	}

	d := domain.VectorDrawable{
		LayerID: l.ID,
		Name:    l.Name,
		Style: domain.PathStyle{
			Color:       color,
			Weight:      domain.PathWeight,
			Opacity:     domain.PathOpacity,
			FillOpacity: domain.PathFillOpacity,
		},
		Marker: domain.MarkerStyle{
			Radius:      domain.MarkerRadius,
			FillColor:   color,
			Color:       color,
			Weight:      domain.MarkerWeight,
			Opacity:     domain.MarkerOpacity,
			FillOpacity: domain.MarkerFillOpacity,
		},
		Data:   l.Data,
		Popups: []domain.Popup{},
	}

	// Features without geometry are never drawn, so they get no popup.
	for i, f := range l.Data.Features() {
		if f == nil || f.Geometry == nil || len(f.Properties) == 0 {
			continue
		}
		d.Popups = append(d.Popups, domain.Popup{Index: i, Entries: PopupEntries(f.Properties)})
	}
	return d
}

// PopupEntries formats properties as "key: value" entries sorted by key.
func PopupEntries(props map[string]interface{}) []domain.PopupEntry {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]domain.PopupEntry, 0, len(keys))
	for _, k := range keys {
		value := "null"
		if v := props[k]; v != nil {
			value = fmt.Sprint(v)
		}
		entries = append(entries, domain.PopupEntry{Key: k, Value: value})
	}
	return entries
}
