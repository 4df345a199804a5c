// Package viewport implements the live viewport handle on top of a
// websocket connection to the map client.
package viewport

import (
	"github.com/jobrunner/geolayers/internal/domain"
)

// Message types exchanged with the map client.
const (
	TypeCommand = "command"
	TypeLayer   = "layer"
	TypeHello   = "hello"

	TypeMoveEnd = "moveend"
	TypeMounted = "mounted"
)

// Command names sent to the client.
const (
	CommandFitBounds = "fitBounds"
	CommandSetView   = "setView"
	CommandSetZoom   = "setZoom"
)

// ServerMessage is sent from the service to the map client.
type ServerMessage struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId,omitempty"`
	Command   string             `json:"command,omitempty"`
	Bounds    *domain.Bounds     `json:"bounds,omitempty"`
	Options   *domain.FitOptions `json:"options,omitempty"`
	Center    *domain.LatLng     `json:"center,omitempty"`
	Zoom      *float64           `json:"zoom,omitempty"`
	Event     *domain.LayerEvent `json:"event,omitempty"`
}

// ClientMessage is received from the map client.
type ClientMessage struct {
	Type    string         `json:"type"`
	Center  *domain.LatLng `json:"center,omitempty"`
	Zoom    *float64       `json:"zoom,omitempty"`
	LayerID string         `json:"layerId,omitempty"`
}
