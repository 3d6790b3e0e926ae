package explorer

import "github.com/joeblew999/plat-traffic/internal/feature"

// Detail is the display form of the selected study.
type Detail struct {
	ID        string   `json:"id" doc:"Study id, or Unknown"`
	Year      string   `json:"year" doc:"Study year, or N/A"`
	Direction string   `json:"direction" doc:"Travel direction, or N/A"`
	Lat       *float64 `json:"lat" doc:"Resolved latitude"`
	Lon       *float64 `json:"lon" doc:"Resolved longitude"`
	LatLabel  string   `json:"latLabel" doc:"Latitude to five decimals, or N/A" example:"53.50000"`
	LonLabel  string   `json:"lonLabel" doc:"Longitude to five decimals, or N/A" example:"-113.50000"`
}

// ProjectDetail derives the detail view of f. A nil feature has no detail.
func ProjectDetail(f *feature.Feature) *Detail {
	if f == nil {
		return nil
	}
	c := feature.Resolve(*f)
	return &Detail{
		ID:        f.ID.Or("Unknown"),
		Year:      f.Year.Or(feature.NotAvailable),
		Direction: f.Direction.Or(feature.NotAvailable),
		Lat:       c.Lat,
		Lon:       c.Lon,
		LatLabel:  feature.FormatCoordinate(c.Lat),
		LonLabel:  feature.FormatCoordinate(c.Lon),
	}
}

// MarkerKey is the stable key of a study marker: its id, or "<lat>-<lon>" when
// the id is missing.
func MarkerKey(f feature.Feature) string {
	if f.ID.Present {
		return f.ID.Text
	}
	c := feature.Resolve(f)
	return feature.RawCoordinate(c.Lat) + "-" + feature.RawCoordinate(c.Lon)
}
