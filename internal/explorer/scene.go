package explorer

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-traffic/internal/feature"
)

// PrimaryLayer is the scene layer name of the filtered studies.
const PrimaryLayer = "studies"

// Scene is what the map widget draws: a base map and marker layers.
type Scene struct {
	BaseMap BaseMap      `json:"baseMap"`
	Center  [2]float64   `json:"center" doc:"Map centre as [lat, lon]"`
	Zoom    int          `json:"zoom"`
	Layers  []SceneLayer `json:"layers"`
}

// SceneLayer is one marker layer. Markers is a GeoJSON FeatureCollection whose
// features carry key, tooltip and popup properties.
type SceneLayer struct {
	Name       string                     `json:"name"`
	Selectable bool                       `json:"selectable"`
	Style      Style                      `json:"style"`
	Markers    *geojson.FeatureCollection `json:"markers"`
}

func studyLayer(results []feature.Feature, style Style) SceneLayer {
	fc := geojson.NewFeatureCollection()
	for _, f := range results {
		c := feature.Resolve(f)
		p, ok := c.Point()
		if !ok {
			continue
		}
		id := f.ID.Or("Unknown ID")
		year := f.Year.Or(feature.NotAvailable)
		dir := f.Direction.Or("Unknown")

		m := geojson.NewFeature(p)
		m.ID = MarkerKey(f)
		m.Properties["key"] = MarkerKey(f)
		m.Properties["tooltip"] = []string{id, "Year: " + year, "Direction: " + dir}
		m.Properties["popup"] = []string{
			"Study: " + id,
			"Year: " + year,
			"Direction: " + dir,
			"Lat: " + feature.FormatCoordinate(c.Lat),
			"Lon: " + feature.FormatCoordinate(c.Lon),
		}
		fc.Append(m)
	}
	return SceneLayer{Name: PrimaryLayer, Selectable: true, Style: style, Markers: fc}
}

func overlayLayer(spec OverlaySpec, features []feature.Feature) SceneLayer {
	fc := geojson.NewFeatureCollection()
	for i, f := range features {
		p, ok := feature.Resolve(f).Point()
		if !ok {
			continue
		}
		id := f.ID.Or(spec.FallbackPrefix + "-" + strconv.Itoa(i+1))
		key := spec.KeyPrefix + "-" + id

		m := geojson.NewFeature(p)
		m.ID = key
		m.Properties["key"] = key
		m.Properties["tooltip"] = []string{fmt.Sprintf("%s: %s", spec.Tooltip, id)}
		title := spec.PopupTitle
		if title == "" {
			title = spec.Label
		}
		m.Properties["popup"] = []string{title, "ID: " + id}
		fc.Append(m)
	}
	return SceneLayer{Name: spec.Name, Style: spec.Style, Markers: fc}
}
