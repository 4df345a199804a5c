package application

import (
	"fmt"

	"github.com/jobrunner/geolayers/internal/domain"
	"github.com/jobrunner/geolayers/internal/ports/input"
)

// SeedPipeline adds the pipeline network under its reserved id. It is a
// no-op when the layer already exists.
func SeedPipeline(store input.LayerStore, geojson []byte) error {
	if _, ok := store.VectorLayer(domain.PipelineLayerID); ok {
		return nil
	}

	data, err := domain.ParseFeatureData(geojson)
	if err != nil {
		return fmt.Errorf("parsing pipeline fixture: %w", err)
	}

	store.AddVectorLayer(domain.VectorLayerInput{
		ID:    domain.PipelineLayerID,
		Name:  domain.PipelineLayerName,
		Data:  data,
		Color: domain.PipelineColor,
	}, nil)
	return nil
}
