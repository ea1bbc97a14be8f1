package service

import (
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// ProximityTracker evaluates the co-location gate for a booking. It keeps no
// state of its own and has no timers: the dwell condition is checked against
// the clock only when a new location update arrives.
type ProximityTracker struct {
	DetectMeters float64
	ResetMeters  float64
	Dwell        time.Duration
}

// NewProximityTracker fills zero values with the 2m / 5m / 5min defaults.
func NewProximityTracker(detect, reset float64, dwell time.Duration) ProximityTracker {
	if detect <= 0 {
		detect = 2
	}
	if reset <= detect {
		reset = 5
	}
	if dwell <= 0 {
		dwell = 5 * time.Minute
	}
	return ProximityTracker{DetectMeters: detect, ResetMeters: reset, Dwell: dwell}
}

// Evaluate advances t for an update observed at now and reports whether any
// gate field changed. With only one party's location known the distance is
// cleared and the gate is left alone.
func (p ProximityTracker) Evaluate(t model.Tracking, now time.Time) (model.Tracking, bool) {
	if t.CustomerLocation == nil || t.ProviderLocation == nil {
		t.DistanceApart = nil
		return t, false
	}
	d := utils.HaversineMeters(*t.ProviderLocation, *t.CustomerLocation)
	t.DistanceApart = &d

	switch {
	case d <= p.DetectMeters && !t.ProximityDetected:
		at := now
		t.ProximityDetected = true
		t.ProximityDetectedAt = &at
		t.ProximityStartTime = &at
		return t, true
	case d <= p.DetectMeters:
		if !t.CanStartJob && t.ProximityStartTime != nil && now.Sub(*t.ProximityStartTime) >= p.Dwell {
			t.CanStartJob = true
			return t, true
		}
	case d > p.ResetMeters && t.ProximityDetected:
		t.ProximityDetected = false
		t.ProximityStartTime = nil
		t.CanStartJob = false
		return t, true
	}
	// between DetectMeters and ResetMeters nothing moves
	return t, false
}
