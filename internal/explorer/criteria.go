package explorer

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-traffic/internal/feature"
)

const (
	DefaultStartYear = 2020
	DefaultEndYear   = 2024
)

// Criteria parameterizes the study query. StartYear > EndYear is allowed and
// passed to the backend unchanged.
type Criteria struct {
	StartYear int               `json:"startYear"`
	EndYear   int               `json:"endYear"`
	Direction feature.Direction `json:"direction"`
}

// DefaultCriteria is the filter a fresh or reset session starts with.
func DefaultCriteria() Criteria {
	return Criteria{StartYear: DefaultStartYear, EndYear: DefaultEndYear, Direction: feature.DirectionAll}
}

// ParseCriteria builds criteria from raw form values. Each year falls back to
// its default on its own when it is not a non-zero integer; an unknown
// direction falls back to All.
func ParseCriteria(startYear, endYear, direction string) Criteria {
	c := Criteria{
		StartYear: parseYear(startYear, DefaultStartYear),
		EndYear:   parseYear(endYear, DefaultEndYear),
		Direction: feature.DirectionAll,
	}
	if d, ok := feature.ParseDirection(direction); ok {
		c.Direction = d
	}
	return c
}

func parseYear(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		return fallback
	}
	return n
}

// Params is the query string of the study endpoint. direction is left out for All.
func (c Criteria) Params() url.Values {
	v := url.Values{}
	v.Set("start_year", strconv.Itoa(c.StartYear))
	v.Set("end_year", strconv.Itoa(c.EndYear))
	if c.Direction != "" && c.Direction != feature.DirectionAll {
		v.Set("direction", string(c.Direction))
	}
	return v
}
