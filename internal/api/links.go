package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-traffic/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/basemaps>; rel="basemaps"`,
		`</api/v1/overlays>; rel="overlays"`,
		`</api/v1/sessions>; rel="sessions"`,
		`</api/v1/exports>; rel="exports"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/overlays>; rel="overlays"`,
	},
	"/api/v1/basemaps": {
		`</api/v1/overlays>; rel="overlays"`,
	},
	"/api/v1/overlays": {
		`</api/v1/basemaps>; rel="basemaps"`,
	},
	"/api/v1/exports": {
		`</health>; rel="up"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers,
// including the state-dependent actions of session snapshots.
func LinkTransformer() huma.Transformer {
	return humastar.LinkTransformer(links)
}
