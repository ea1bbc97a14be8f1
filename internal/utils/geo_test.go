package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

func TestHaversine(t *testing.T) {
	jhb := model.GeoPoint{Lat: -26.2041, Lng: 28.0473}
	pta := model.GeoPoint{Lat: -25.7479, Lng: 28.2293}

	assert.Zero(t, HaversineMeters(jhb, jhb))
	// roughly 54km between the two city centres
	assert.InDelta(t, 54.0, HaversineKm(jhb, pta), 1.0)
	assert.InDelta(t, HaversineMeters(jhb, pta), HaversineMeters(pta, jhb), 1e-6)

	// one millidegree of latitude is about 111m
	a := model.GeoPoint{Lat: -26.0, Lng: 28.0}
	b := model.GeoPoint{Lat: -26.001, Lng: 28.0}
	assert.InDelta(t, 111.2, HaversineMeters(a, b), 0.5)
}

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name string
		p    model.GeoPoint
		want error
	}{
		{"ok", model.GeoPoint{Lat: -26, Lng: 28}, nil},
		{"null island", model.GeoPoint{}, ErrNullIsland},
		{"lat high", model.GeoPoint{Lat: 90.1, Lng: 1}, ErrLatitudeRange},
		{"lat low", model.GeoPoint{Lat: -91, Lng: 1}, ErrLatitudeRange},
		{"lng high", model.GeoPoint{Lat: 1, Lng: 180.5}, ErrLongitudeRange},
		{"lng low", model.GeoPoint{Lat: 1, Lng: -181}, ErrLongitudeRange},
		{"nan", model.GeoPoint{Lat: math.NaN(), Lng: 1}, ErrMissingCoordinates},
		{"lat zero only", model.GeoPoint{Lat: 0, Lng: 28}, nil},
		{"edges", model.GeoPoint{Lat: 90, Lng: -180}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidatePoint(tc.p))
		})
	}
}

func TestNormalizePointRounds(t *testing.T) {
	p, err := NormalizePoint(model.GeoPoint{Lat: -26.123456789, Lng: 28.000000049})
	require.NoError(t, err)
	assert.Equal(t, -26.1234568, p.Lat)
	assert.Equal(t, 28.0, p.Lng)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(" -26.5 ", "28.25")
	require.NoError(t, err)
	assert.Equal(t, model.GeoPoint{Lat: -26.5, Lng: 28.25}, p)

	_, err = ParsePoint("", "28")
	assert.ErrorIs(t, err, ErrMissingCoordinates)
	_, err = ParsePoint("abc", "28")
	assert.ErrorIs(t, err, ErrLatitudeRange)
	_, err = ParsePoint("0", "0")
	assert.ErrorIs(t, err, ErrNullIsland)
}
