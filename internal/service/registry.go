// Package service holds the process-wide state of the traffic explorer: the
// overlay and base-map registry, the session store and the event bus.
package service

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-traffic/internal/explorer"
)

// DefaultLayout is the map used when no registry file is configured.
func DefaultLayout() explorer.Layout {
	return explorer.Layout{
		Overlays: []explorer.OverlaySpec{
			{
				Name:           "mv_points_snapped",
				Label:          "Miovision Points",
				KeyPrefix:      "mv",
				FallbackPrefix: "MV",
				Tooltip:        "Miovision",
				PopupTitle:     "Miovision Point",
				ErrorMessage:   "Unable to load Miovision points.",
				DefaultEnabled: true,
				Style:          explorer.Style{Radius: 6, Color: "#16a34a", FillColor: "#22c55e", FillOpacity: 0.75},
			},
			{
				Name:           "estimation_points_snapped",
				Label:          "Estimation Points",
				KeyPrefix:      "est",
				FallbackPrefix: "EST",
				Tooltip:        "Estimation",
				PopupTitle:     "Estimation Point",
				ErrorMessage:   "Unable to load estimation points.",
				DefaultEnabled: true,
				Style:          explorer.Style{Radius: 6, Color: "#dc2626", FillColor: "#f87171", FillOpacity: 0.75},
			},
		},
		BaseMaps: []explorer.BaseMap{
			{
				Key:         "streets",
				Label:       "Street Map",
				Attribution: "&copy; <a href='https://www.openstreetmap.org/copyright'>OpenStreetMap</a> contributors",
				URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			},
			{
				Key:         "imagery",
				Label:       "Satellite Imagery",
				Attribution: "Tiles © Esri - Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
				URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			},
		},
		DefaultBaseMap: "streets",
		Center:         [2]float64{53.5461, -113.4938},
		Zoom:           12,
		Primary:        explorer.Style{Radius: 8, Color: "#1d4ed8", FillColor: "#1d4ed8", FillOpacity: 0.7},
	}
}

// Registry is the validated, read-only map layout shared by all sessions.
type Registry struct {
	path   string
	layout explorer.Layout
}

// NewRegistry loads the layout from a YAML file, or uses DefaultLayout when
// path is empty.
func NewRegistry(path string) (*Registry, error) {
	if path == "" {
		return newRegistry("", DefaultLayout())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layer registry: %w", err)
	}
	layout, err := ParseLayout(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return newRegistry(path, layout)
}

func newRegistry(path string, layout explorer.Layout) (*Registry, error) {
	if err := ValidateLayout(layout); err != nil {
		return nil, err
	}
	return &Registry{path: path, layout: layout}, nil
}

// ParseLayout decodes a YAML registry. Overlays without a name get one derived
// from their label; styles and prefixes left out are filled from the defaults.
func ParseLayout(data []byte) (explorer.Layout, error) {
	layout := DefaultLayout()
	layout.Overlays = nil
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return explorer.Layout{}, fmt.Errorf("parse layer registry: %w", err)
	}
	for i := range layout.Overlays {
		o := &layout.Overlays[i]
		if o.Name == "" {
			o.Name = generateID(o.Label)
		}
		if o.KeyPrefix == "" {
			o.KeyPrefix = o.Name
		}
		if o.FallbackPrefix == "" {
			o.FallbackPrefix = strings.ToUpper(o.KeyPrefix)
		}
		if o.Tooltip == "" {
			o.Tooltip = o.Label
		}
		if o.ErrorMessage == "" {
			o.ErrorMessage = fmt.Sprintf("Unable to load %s.", o.Label)
		}
		if o.Style == (explorer.Style{}) {
			o.Style = explorer.Style{Radius: 6, Color: "#475569", FillColor: "#94a3b8", FillOpacity: 0.75}
		}
	}
	return layout, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateLayout checks field constraints plus the cross-field rules: unique
// overlay names and base-map keys, and a default base map that exists.
func ValidateLayout(l explorer.Layout) error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid layer registry: %w", err)
	}
	seen := map[string]bool{}
	for _, o := range l.Overlays {
		if seen[o.Name] {
			return fmt.Errorf("invalid layer registry: duplicate overlay %q", o.Name)
		}
		seen[o.Name] = true
	}
	keys := map[string]bool{}
	for _, b := range l.BaseMaps {
		if keys[b.Key] {
			return fmt.Errorf("invalid layer registry: duplicate base map %q", b.Key)
		}
		keys[b.Key] = true
	}
	if !keys[l.DefaultBaseMap] {
		return fmt.Errorf("invalid layer registry: default base map %q is not defined", l.DefaultBaseMap)
	}
	return nil
}

func (r *Registry) Path() string { return r.path }

// Layout returns the layout handed to new sessions.
func (r *Registry) Layout() explorer.Layout { return r.layout }

func (r *Registry) Overlays() []explorer.OverlaySpec { return r.layout.Overlays }

func (r *Registry) BaseMaps() []explorer.BaseMap { return r.layout.BaseMaps }

// Overlay returns an overlay by name.
func (r *Registry) Overlay(name string) (explorer.OverlaySpec, bool) {
	for _, o := range r.layout.Overlays {
		if o.Name == name {
			return o, true
		}
	}
	return explorer.OverlaySpec{}, false
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
