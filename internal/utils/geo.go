package utils

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

const earthRadiusMeters = 6371000.0

var (
	// ErrMissingCoordinates is returned when no usable coordinate pair was supplied.
	ErrMissingCoordinates = errors.New("coordinates are required")
	// ErrNullIsland is returned for the exact (0,0) pair, which devices report when they have no fix.
	ErrNullIsland = errors.New("coordinates (0,0) are not a valid location")
	// ErrLatitudeRange is returned when latitude is outside [-90, 90].
	ErrLatitudeRange = errors.New("latitude must be between -90 and 90")
	// ErrLongitudeRange is returned when longitude is outside [-180, 180].
	ErrLongitudeRange = errors.New("longitude must be between -180 and 180")
)

// HaversineMeters returns the great-circle distance between a and b in meters.
func HaversineMeters(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineKm is HaversineMeters expressed in kilometers.
func HaversineKm(a, b model.GeoPoint) float64 {
	return HaversineMeters(a, b) / 1000
}

// ValidatePoint checks range and rejects the (0,0) placeholder.
func ValidatePoint(p model.GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ErrMissingCoordinates
	}
	if p.Lat == 0 && p.Lng == 0 {
		return ErrNullIsland
	}
	if p.Lat < -90 || p.Lat > 90 {
		return ErrLatitudeRange
	}
	if p.Lng < -180 || p.Lng > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// NormalizePoint validates p and rounds both axes to 7 decimal places
// (about 1cm), which is the precision the store keeps.
func NormalizePoint(p model.GeoPoint) (model.GeoPoint, error) {
	if err := ValidatePoint(p); err != nil {
		return model.GeoPoint{}, err
	}
	return model.GeoPoint{Lat: round7(p.Lat), Lng: round7(p.Lng)}, nil
}

// ParsePoint builds a point from string inputs such as query parameters or
// form fields.
func ParsePoint(lat, lng string) (model.GeoPoint, error) {
	lat, lng = strings.TrimSpace(lat), strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return model.GeoPoint{}, ErrMissingCoordinates
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return model.GeoPoint{}, ErrLatitudeRange
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return model.GeoPoint{}, ErrLongitudeRange
	}
	return NormalizePoint(model.GeoPoint{Lat: la, Lng: ln})
}

func round7(v float64) float64 {
	return math.Round(v*1e7) / 1e7
}
