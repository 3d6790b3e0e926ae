package feature

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
)

// NotAvailable is the display token for a missing coordinate.
const NotAvailable = "N/A"

// Coordinates is a resolved position. A nil axis means no source had a numeric
// value for it.
type Coordinates struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Resolve picks the position of f. Attribute lat/lon win over the geometry; the
// geometry pair is ordered [lon, lat]. Each axis falls back independently.
func Resolve(f Feature) Coordinates {
	c := Coordinates{Lat: f.PropLat, Lon: f.PropLon}
	if c.Lat == nil {
		c.Lat = f.GeomLat
	}
	if c.Lon == nil {
		c.Lon = f.GeomLon
	}
	return c
}

// Point returns the position as an orb.Point when both axes are known.
func (c Coordinates) Point() (orb.Point, bool) {
	if c.Lat == nil || c.Lon == nil {
		return orb.Point{}, false
	}
	return orb.Point{*c.Lon, *c.Lat}, true
}

// Positionable reports whether the feature can be placed on the map.
func (c Coordinates) Positionable() bool {
	_, ok := c.Point()
	return ok
}

// FormatCoordinate renders a coordinate for display: five decimals, or N/A.
func FormatCoordinate(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.5f", *v)
}

// RawCoordinate renders a coordinate for export: shortest exact form, or empty.
func RawCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
