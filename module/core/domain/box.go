package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidBox = errors.New("invalid bounding box")

// BoundingBox is the legal region for generated destinations.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// TrentoBox is the region the field deployment flew in.
var TrentoBox = BoundingBox{
	MinLat: 46.040603518369856,
	MaxLat: 46.096244200191684,
	MinLon: 11.108262519974287,
	MaxLon: 11.139450300806237,
}

func (b BoundingBox) Validate() error {
	if !(b.MinLat < b.MaxLat) {
		return fmt.Errorf("%w: min_lat %v must be below max_lat %v", ErrInvalidBox, b.MinLat, b.MaxLat)
	}
	if !(b.MinLon < b.MaxLon) {
		return fmt.Errorf("%w: min_lon %v must be below max_lon %v", ErrInvalidBox, b.MinLon, b.MaxLon)
	}
	return nil
}

// Contains reports whether the point lies inside the box, bounds included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

func (b BoundingBox) Midpoint() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}
