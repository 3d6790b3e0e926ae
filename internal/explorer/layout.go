package explorer

// Style is the visual style of a marker layer.
type Style struct {
	Radius      float64 `json:"radius" yaml:"radius" validate:"gt=0"`
	Color       string  `json:"color" yaml:"color" validate:"required"`
	FillColor   string  `json:"fillColor" yaml:"fillColor" validate:"required"`
	FillOpacity float64 `json:"fillOpacity" yaml:"fillOpacity" validate:"gte=0,lte=1"`
}

// OverlaySpec describes one optional background overlay.
type OverlaySpec struct {
	Name           string `json:"name" yaml:"name" validate:"required"`
	Label          string `json:"label" yaml:"label" validate:"required"`
	KeyPrefix      string `json:"keyPrefix" yaml:"keyPrefix" validate:"required"`
	FallbackPrefix string `json:"fallbackPrefix" yaml:"fallbackPrefix" validate:"required"`
	Tooltip        string `json:"tooltip" yaml:"tooltip" validate:"required"`
	PopupTitle     string `json:"popupTitle" yaml:"popupTitle"`
	ErrorMessage   string `json:"errorMessage" yaml:"errorMessage" validate:"required"`
	DefaultEnabled bool   `json:"defaultEnabled" yaml:"defaultEnabled"`
	Style          Style  `json:"style" yaml:"style"`
}

// BaseMap is a tile source the map widget can draw underneath the markers.
type BaseMap struct {
	Key         string `json:"key" yaml:"key" validate:"required"`
	Label       string `json:"label" yaml:"label" validate:"required"`
	Attribution string `json:"attribution" yaml:"attribution"`
	URL         string `json:"url" yaml:"url" validate:"required"`
}

// Layout is everything a session needs to know about the map besides the data.
type Layout struct {
	Overlays       []OverlaySpec `json:"overlays" yaml:"overlays" validate:"dive"`
	BaseMaps       []BaseMap     `json:"baseMaps" yaml:"baseMaps" validate:"required,min=1,dive"`
	DefaultBaseMap string        `json:"defaultBaseMap" yaml:"defaultBaseMap" validate:"required"`
	Center         [2]float64    `json:"center" yaml:"center"`
	Zoom           int           `json:"zoom" yaml:"zoom" validate:"gte=0,lte=22"`
	Primary        Style         `json:"primary" yaml:"primary"`
}

// BaseMap looks a base map up by key.
func (l Layout) BaseMap(key string) (BaseMap, bool) {
	for _, b := range l.BaseMaps {
		if b.Key == key {
			return b, true
		}
	}
	return BaseMap{}, false
}
