package domain

import "time"

// LayerEventType is the kind of store change.
type LayerEventType string

// Layer event types.
const (
	LayerAdded   LayerEventType = "added"
	LayerRemoved LayerEventType = "removed"
	LayerUpdated LayerEventType = "updated"
)

// LayerEvent notifies observers of a store mutation.
type LayerEvent struct {
	Type    LayerEventType `json:"type"`
	Kind    LayerKind      `json:"kind"`
	LayerID string         `json:"layerId"`
	At      time.Time      `json:"at"`
}
