package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	backendURL string
	layersPath string
	exportDir  string
}

func NewInfoHandler(backendURL, layersPath, exportDir string) *InfoHandler {
	return &InfoHandler{backendURL: backendURL, layersPath: layersPath, exportDir: exportDir}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	BackendURL string   `json:"backend_url" doc:"Base URL of the study backend"`
	Layers     string   `json:"layers" doc:"Layer registry file, or builtin"`
	ExportDir  string   `json:"export_dir" doc:"Directory saved exports are written to"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	layers := h.layersPath
	if layers == "" {
		layers = "builtin"
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-traffic",
		Version:    "0.1.0",
		BackendURL: h.backendURL,
		Layers:     layers,
		ExportDir:  h.exportDir,
		Features:   []string{"overlays", "filter", "selection", "scene", "csv-export"},
	}}, nil
}
