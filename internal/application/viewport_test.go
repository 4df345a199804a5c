package application

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geolayers/internal/domain"
)

var defaultView = domain.ViewState{Center: domain.LatLng{Lat: 4.55, Lng: 8.2}, Zoom: 12}

func TestViewportCoordinator_NoViewport(t *testing.T) {
	c := NewViewportCoordinator(defaultView, nil, testLogger())

	if c.Viewport() != nil {
		t.Fatal("Viewport() should be nil before mount")
	}
	if err := c.SetView(domain.LatLng{}, 3); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("SetView() error = %v, want ErrNoViewport", err)
	}
	if err := c.SetZoom(3); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("SetZoom() error = %v, want ErrNoViewport", err)
	}
	if _, err := c.GetZoom(); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("GetZoom() error = %v, want ErrNoViewport", err)
	}
	if _, err := c.GetCenter(); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("GetCenter() error = %v, want ErrNoViewport", err)
	}
	if err := c.FitBounds(domain.NewBounds(0, 0, 1, 1), domain.FitOptions{}); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("FitBounds() error = %v, want ErrNoViewport", err)
	}

	state, err := c.State()
	if !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("State() error = %v, want ErrNoViewport", err)
	}
	if state != defaultView {
		t.Errorf("State() = %+v, want default view", state)
	}
}

func TestViewportCoordinator_InvalidBoundsIsNoOp(t *testing.T) {
	c := NewViewportCoordinator(defaultView, nil, testLogger())
	if err := c.FitBounds(domain.EmptyBounds(), domain.FitOptions{}); err != nil {
		t.Errorf("FitBounds(invalid) without viewport = %v, want nil", err)
	}

	vp := &mockViewport{}
	c.SetViewport(vp)
	if err := c.FitBounds(domain.EmptyBounds(), domain.FitOptions{}); err != nil {
		t.Errorf("FitBounds(invalid) = %v, want nil", err)
	}
	if n := len(vp.fitCalls()); n != 0 {
		t.Errorf("FitBounds forwarded %d times, want 0", n)
	}
}

func TestViewportCoordinator_ForwardsCommands(t *testing.T) {
	c := NewViewportCoordinator(defaultView, nil, testLogger())
	vp := &mockViewport{}
	c.SetViewport(vp)

	if err := c.SetView(domain.LatLng{Lat: 4.6, Lng: 8.3}, 10); err != nil {
		t.Fatalf("SetView() error = %v", err)
	}
	if err := c.ZoomBy(2); err != nil {
		t.Fatalf("ZoomBy() error = %v", err)
	}

	state, err := c.State()
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Center != (domain.LatLng{Lat: 4.6, Lng: 8.3}) || state.Zoom != 12 {
		t.Errorf("State() = %+v", state)
	}

	if err := c.ZoomBy(100); err != nil {
		t.Fatalf("ZoomBy() error = %v", err)
	}
	if z, _ := c.GetZoom(); z != domain.MaxZoomLevel {
		t.Errorf("zoom = %v, want clamped to %d", z, domain.MaxZoomLevel)
	}
}

func TestViewportCoordinator_StaleUnmountKeepsNewerHandle(t *testing.T) {
	c := NewViewportCoordinator(defaultView, nil, testLogger())
	older := &mockViewport{}
	newer := &mockViewport{}

	c.SetViewport(older)
	c.SetViewport(newer)

	if c.ClearViewport(older) {
		t.Error("clearing a replaced handle should be a no-op")
	}
	if c.Viewport() != newer {
		t.Error("newer handle must survive a stale unmount")
	}

	if !c.ClearViewport(newer) {
		t.Error("clearing the current handle should succeed")
	}
	if c.Connected() {
		t.Error("Connected() should be false after unmount")
	}
}

func TestViewportCoordinator_ResetView(t *testing.T) {
	store := newTestStore(0)
	c := NewViewportCoordinator(defaultView, nil, testLogger())

	if err := c.ResetView(store); !errors.Is(err, domain.ErrNoViewport) {
		t.Errorf("ResetView() without viewport = %v, want ErrNoViewport", err)
	}

	vp := &mockViewport{}
	c.SetViewport(vp)

	if err := c.ResetView(store); err != nil {
		t.Fatalf("ResetView() error = %v", err)
	}
	if vp.GetCenter() != defaultView.Center || vp.GetZoom() != defaultView.Zoom {
		t.Errorf("without pipeline layer the default view should be set, got %v @ %v", vp.GetCenter(), vp.GetZoom())
	}

	store.AddVectorLayer(domain.VectorLayerInput{
		ID:   domain.PipelineLayerID,
		Data: pointFeatures(orb.Point{8.0, 4.4}, orb.Point{8.4, 4.7}),
	}, nil)
	if err := c.ResetView(store); err != nil {
		t.Fatalf("ResetView() error = %v", err)
	}

	calls := vp.fitCalls()
	if len(calls) != 1 {
		t.Fatalf("FitBounds called %d times, want 1", len(calls))
	}
	if calls[0].opts.MaxZoom != domain.ResetFitMaxZoom || !calls[0].opts.Animate {
		t.Errorf("opts = %+v", calls[0].opts)
	}
}
