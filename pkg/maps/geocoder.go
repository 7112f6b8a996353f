package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// Geocoder resolves human-readable addresses for alert locations so a
// monitor sees "Rua de Santa Clara 12" instead of raw coordinates.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleGeocoder{
		client: client,
	}, nil
}

// ReverseGeocode returns the formatted address of the first geocoding result,
// or an empty string when the location resolves to nothing.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	}

	resp, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return "", fmt.Errorf("reverse geocoding failed: %w", err)
	}

	if len(resp) == 0 {
		return "", nil
	}
	return resp[0].FormattedAddress, nil
}
