package core

import (
	"math"
	"time"

	"axiapac.com/attendance/attendance/model"
)

const (
	EarthRadiusMeters = 6371000.0
	MaxAccuracyMeters = 500.0
	MaxSampleAge      = 30 * time.Second
)

// LocationSample is a device fix. Only Latitude and Longitude are required for a distance.
type LocationSample struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Accuracy  *float64   `json:"accuracy"`
	Timestamp *time.Time `json:"timestamp"`
}

func (s LocationSample) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

type Geofence struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

func GeofenceOf(branch *model.Branch) Geofence {
	return Geofence{
		Latitude:     branch.Latitude,
		Longitude:    branch.Longitude,
		RadiusMeters: branch.RadiusMeters,
	}
}

type VerdictStatus string

const (
	ConfirmedInside  VerdictStatus = "CONFIRMED_INSIDE"
	ConfirmedOutside VerdictStatus = "CONFIRMED_OUTSIDE"
	SignalUnreliable VerdictStatus = "SIGNAL_UNRELIABLE"
)

type VerdictReason string

const (
	ReasonInside          VerdictReason = "INSIDE"
	ReasonOutside         VerdictReason = "OUTSIDE"
	ReasonLocationMissing VerdictReason = "LOCATION_MISSING"
	ReasonAccuracyTooLow  VerdictReason = "ACCURACY_TOO_LOW"
	ReasonLocationStale   VerdictReason = "LOCATION_STALE"
)

// Verdict is the outcome of validating a sample against a geofence.
// DistanceMeters is -1 when the distance was not computed.
type Verdict struct {
	Status         VerdictStatus `json:"status"`
	Valid          bool          `json:"valid"`
	Reason         VerdictReason `json:"reason"`
	DistanceMeters float64       `json:"distanceMeters"`
	RadiusMeters   float64       `json:"radiusMeters"`
}

func (v Verdict) Unreliable() bool {
	return v.Status == SignalUnreliable
}

type ValidateOptions struct {
	// TrustLastKnown decides the validity of a sample that cannot be trusted.
	// Check-in validates strictly (false), check-out leniently (true).
	TrustLastKnown bool
	Now            time.Time
}

// HaversineDistance returns the great-circle distance in meters.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	const toRad = math.Pi / 180

	dLat := (lat2 - lat1) * toRad
	dLng := (lng2 - lng1) * toRad

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*sinLng*sinLng

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Validate checks the sample against the fence. The first matching rule wins:
// missing position, poor accuracy, stale fix, then the distance comparison.
func Validate(sample LocationSample, fence Geofence, opts ValidateOptions) Verdict {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	unreliable := func(reason VerdictReason) Verdict {
		return Verdict{
			Status:         SignalUnreliable,
			Valid:          opts.TrustLastKnown,
			Reason:         reason,
			DistanceMeters: -1,
			RadiusMeters:   fence.RadiusMeters,
		}
	}

	if !sample.HasPosition() {
		return unreliable(ReasonLocationMissing)
	}
	if sample.Accuracy != nil && *sample.Accuracy > MaxAccuracyMeters {
		return unreliable(ReasonAccuracyTooLow)
	}
	if sample.Timestamp != nil && now.Sub(*sample.Timestamp) > MaxSampleAge {
		return unreliable(ReasonLocationStale)
	}

	distance := HaversineDistance(*sample.Latitude, *sample.Longitude, fence.Latitude, fence.Longitude)
	if distance > fence.RadiusMeters {
		return Verdict{
			Status:         ConfirmedOutside,
			Valid:          false,
			Reason:         ReasonOutside,
			DistanceMeters: distance,
			RadiusMeters:   fence.RadiusMeters,
		}
	}

	return Verdict{
		Status:         ConfirmedInside,
		Valid:          true,
		Reason:         ReasonInside,
		DistanceMeters: distance,
		RadiusMeters:   fence.RadiusMeters,
	}
}
