// Package geocode converts between free-text addresses and coordinates
// using the Google Maps Geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/iliyamo/geo-regions/internal/model"
)

var (
	// ErrOutOfBounds is returned before any network call when a coordinate
	// pair falls outside lat ∈ [-90,90], lng ∈ [-180,180].
	ErrOutOfBounds = errors.New("coordinates out of bounds")
	// ErrNoResults is returned when the provider answers with zero results.
	ErrNoResults = errors.New("no geocoding results")
)

// Geocoder is the contract the user service depends on.
type Geocoder interface {
	AddressFromCoordinates(ctx context.Context, pos model.LngLat) (string, error)
	CoordinatesFromAddress(ctx context.Context, address string) (model.LngLat, error)
}

type mapsAPI interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GoogleGeocoder calls Google Maps.  Requests are rate limited client side
// so a burst of registrations cannot exhaust the API quota.
type GoogleGeocoder struct {
	api     mapsAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGoogleGeocoder creates a geocoder for apiKey allowing rps requests per
// second with a burst of the same size.
func NewGoogleGeocoder(apiKey string, rps int, logger *slog.Logger) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return newGoogleGeocoder(client, rps, logger), nil
}

func newGoogleGeocoder(api mapsAPI, rps int, logger *slog.Logger) *GoogleGeocoder {
	if rps <= 0 {
		rps = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleGeocoder{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), rps),
		logger:  logger,
	}
}

// AddressFromCoordinates reverse geocodes pos and returns the first
// formatted address.
func (g *GoogleGeocoder) AddressFromCoordinates(ctx context.Context, pos model.LngLat) (string, error) {
	if !pos.InBounds() {
		return "", fmt.Errorf("failed to get address: %w", ErrOutOfBounds)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to get address: %w", err)
	}
	results, err := g.api.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: pos.Lat(), Lng: pos.Lng()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get address: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("failed to get address: %w", ErrNoResults)
	}
	g.logger.Debug("reverse geocoded", "lng", pos.Lng(), "lat", pos.Lat(), "results", len(results))
	return results[0].FormattedAddress, nil
}

// CoordinatesFromAddress geocodes address and returns the location of the
// first result as [lng, lat].
func (g *GoogleGeocoder) CoordinatesFromAddress(ctx context.Context, address string) (model.LngLat, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return model.LngLat{}, fmt.Errorf("failed to get coordinates: %w", err)
	}
	results, err := g.api.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return model.LngLat{}, fmt.Errorf("failed to get coordinates: %w", err)
	}
	if len(results) == 0 {
		return model.LngLat{}, fmt.Errorf("failed to get coordinates: %w", ErrNoResults)
	}
	loc := results[0].Geometry.Location
	g.logger.Debug("geocoded", "address", address, "results", len(results))
	return model.LngLat{loc.Lng, loc.Lat}, nil
}
