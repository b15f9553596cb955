package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iliyamo/geo-regions/internal/geocode"
	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/queue"
)

// FakeGeocoder resolves addresses from a fixed table.  Unknown addresses
// yield geocode.ErrNoResults; coordinates not in the table are rendered
// as "lat, lng".  Setting Err makes every call fail with it.
type FakeGeocoder struct {
	mu        sync.Mutex
	Addresses map[string]model.LngLat
	Err       error
	Calls     int
}

func NewFakeGeocoder() *FakeGeocoder {
	return &FakeGeocoder{Addresses: map[string]model.LngLat{}}
}

func (g *FakeGeocoder) AddressFromCoordinates(_ context.Context, pos model.LngLat) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls++
	if g.Err != nil {
		return "", g.Err
	}
	if !pos.InBounds() {
		return "", geocode.ErrOutOfBounds
	}
	for address, p := range g.Addresses {
		if p == pos {
			return address, nil
		}
	}
	return fmt.Sprintf("%.5f, %.5f", pos.Lat(), pos.Lng()), nil
}

func (g *FakeGeocoder) CoordinatesFromAddress(_ context.Context, address string) (model.LngLat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls++
	if g.Err != nil {
		return model.LngLat{}, g.Err
	}
	p, ok := g.Addresses[strings.TrimSpace(address)]
	if !ok {
		return model.LngLat{}, geocode.ErrNoResults
	}
	return p, nil
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *RecordingPublisher) Events() []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Event(nil), p.events...)
}

// Types lists event types in publish order.
func (p *RecordingPublisher) Types() []string {
	var out []string
	for _, ev := range p.Events() {
		out = append(out, ev.Type)
	}
	return out
}

// Square returns a closed axis-aligned square polygon with its south-west
// corner at (lng, lat).
func Square(lng, lat, size float64) model.Polygon {
	return model.NewPolygon([]model.LngLat{
		{lng, lat},
		{lng + size, lat},
		{lng + size, lat + size},
		{lng, lat + size},
		{lng, lat},
	})
}
