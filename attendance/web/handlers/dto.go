package handlers

import (
	attendance "axiapac.com/attendance/attendance/core"
	"axiapac.com/attendance/utils"
)

type LocationDTO struct {
	Latitude   *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude  *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
	Accuracy   *float64 `json:"accuracy" binding:"omitempty,min=0"`
	RecordedAt *string  `json:"recordedAt"`
}

func (l LocationDTO) sample() (attendance.LocationSample, error) {
	sample := attendance.LocationSample{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Accuracy:  l.Accuracy,
	}
	if l.RecordedAt != nil && *l.RecordedAt != "" {
		at, err := utils.ParseISOTime(*l.RecordedAt)
		if err != nil {
			return sample, err
		}
		sample.Timestamp = at
	}
	return sample, nil
}

type CheckInDTO struct {
	Location LocationDTO `json:"location"`
	Timezone string      `json:"timezone"`
	FreeTask bool        `json:"freeTask"`
}

type CheckOutDTO struct {
	Location LocationDTO `json:"location"`
	Timezone string      `json:"timezone"`
}

type HeartbeatDTO struct {
	Location   LocationDTO `json:"location"`
	GPSEnabled *bool       `json:"gpsEnabled" binding:"required"`
}

type SweepDTO struct {
	DryRun bool `json:"dryRun"`
}
