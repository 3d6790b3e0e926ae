// Package feature holds the traffic study record as the rest of the system sees it:
// a typed Feature decoded from loosely-shaped GeoJSON, plus the coordinate rules
// used for map placement, detail display and export.
package feature

import (
	"strconv"
	"strings"
)

// Direction is the travel direction of a traffic study.
type Direction string

const (
	// DirectionAll is the filter sentinel meaning "do not filter by direction".
	DirectionAll Direction = "All"

	Northbound Direction = "Northbound"
	Southbound Direction = "Southbound"
	Eastbound  Direction = "Eastbound"
	Westbound  Direction = "Westbound"

	// DirectionUnknown is used for records whose direction is absent or outside
	// the enumeration.
	DirectionUnknown Direction = "Unknown"
)

// Directions lists the filter options in display order, sentinel first.
var Directions = []Direction{DirectionAll, Northbound, Southbound, Eastbound, Westbound}

// ParseDirection matches s case-insensitively against the filter options.
func ParseDirection(s string) (Direction, bool) {
	s = strings.TrimSpace(s)
	for _, d := range Directions {
		if strings.EqualFold(s, string(d)) {
			return d, true
		}
	}
	return "", false
}

// Value is a scalar attribute exactly as the backend sent it, rendered to text.
// Present is false when the attribute was missing, null or not a scalar.
type Value struct {
	Text    string
	Present bool
}

// Text returns a present Value holding s.
func Text(s string) Value { return Value{Text: s, Present: true} }

// Or returns the value text, or fallback when the attribute is absent.
func (v Value) Or(fallback string) string {
	if !v.Present {
		return fallback
	}
	return v.Text
}

// Feature is a single traffic study point.
//
// Positions are kept per source and per axis: the attribute bag may carry
// numeric lat/lon, and the geometry may carry a [lon, lat] pair. Either may be
// partially or entirely missing; Resolve decides which one wins.
type Feature struct {
	ID        Value
	Year      Value
	Direction Value

	PropLat *float64
	PropLon *float64
	GeomLon *float64
	GeomLat *float64
}

// YearInt returns the study year when it is an integer.
func (f Feature) YearInt() (int, bool) {
	if !f.Year.Present {
		return 0, false
	}
	n, err := strconv.Atoi(f.Year.Text)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TravelDirection maps the raw direction attribute onto the enumeration.
func (f Feature) TravelDirection() Direction {
	if d, ok := ParseDirection(f.Direction.Text); ok && d != DirectionAll {
		return d
	}
	return DirectionUnknown
}

// Float returns a pointer to v. Convenient for building features in code.
func Float(v float64) *float64 { return &v }
