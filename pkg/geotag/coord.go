// Package geotag reads, edits and writes the GPS position stored in photographs.
package geotag

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned for coordinates outside the valid latitude or longitude range.
var ErrOutOfRange = errors.New("coordinate out of range")

// Coordinate is a position in decimal degrees. Alt is always 0 in this package.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// NewCoordinate returns a validated coordinate at the given position.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that latitude is within [-90, 90] and longitude within [-180, 180].
func (c Coordinate) Validate() error {
	// written negated so that NaN fails too
	if !(c.Lat >= -90 && c.Lat <= 90) {
		return fmt.Errorf("latitude %v: %w", c.Lat, ErrOutOfRange)
	}
	if !(c.Lon >= -180 && c.Lon <= 180) {
		return fmt.Errorf("longitude %v: %w", c.Lon, ErrOutOfRange)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

// LatRef returns the hemisphere reference for a latitude.
func LatRef(lat float64) byte {
	if lat >= 0 {
		return 'N'
	}
	return 'S'
}

// LonRef returns the hemisphere reference for a longitude.
func LonRef(lon float64) byte {
	if lon >= 0 {
		return 'E'
	}
	return 'W'
}
