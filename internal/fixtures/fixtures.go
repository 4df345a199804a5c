// Package fixtures bundles the base layer data shipped with the service.
package fixtures

import _ "embed"

// PipelineGeoJSON is the pipeline network seeded into every new store.
//
//go:embed pipeline.geojson
var PipelineGeoJSON []byte
