package api

import (
	"net/http"

	"github.com/joeblew999/plat-traffic/internal/explorer"
	"github.com/joeblew999/plat-traffic/internal/feature"
	"github.com/joeblew999/plat-traffic/internal/humastar"
)

// StudyBody is one study of the current results.
type StudyBody struct {
	Key       string   `json:"key" doc:"Marker key used to select the study" example:"S1"`
	ID        string   `json:"id,omitempty" doc:"Study id as sent by the backend" example:"S1"`
	Year      string   `json:"year,omitempty" doc:"Study year as sent by the backend" example:"2021"`
	Direction string   `json:"direction,omitempty" doc:"Travel direction as sent by the backend" example:"Northbound"`
	Lat       *float64 `json:"lat,omitempty" doc:"Resolved latitude"`
	Lon       *float64 `json:"lon,omitempty" doc:"Resolved longitude"`
}

func studyBody(f feature.Feature) StudyBody {
	c := feature.Resolve(f)
	return StudyBody{
		Key:       explorer.MarkerKey(f),
		ID:        f.ID.Or(""),
		Year:      f.Year.Or(""),
		Direction: f.Direction.Or(""),
		Lat:       c.Lat,
		Lon:       c.Lon,
	}
}

// QueryBody is the state of the study query.
type QueryBody struct {
	Status  string      `json:"status" enum:"idle,loading,success,error" doc:"Query lifecycle state"`
	Notice  string      `json:"notice,omitempty" doc:"Message shown next to the filter controls" example:"No studies match the current filters."`
	Error   string      `json:"error,omitempty" doc:"Failure message of the last run" example:"Request failed with status 500"`
	HasRun  bool        `json:"hasRun" doc:"Whether a query has been attempted since the last reset, failed or not"`
	Count   int         `json:"count" doc:"Number of results"`
	Results []StudyBody `json:"results" doc:"Results of the last successful run"`
}

func queryBody(st explorer.QueryState) QueryBody {
	b := QueryBody{
		Status:  string(st.Status),
		Notice:  st.Notice(),
		Error:   st.ErrorMessage,
		HasRun:  st.HasRun,
		Results: []StudyBody{},
	}
	if st.Status == explorer.StatusSuccess {
		for _, f := range st.Results {
			b.Results = append(b.Results, studyBody(f))
		}
	}
	b.Count = len(b.Results)
	return b
}

// SessionBody is a snapshot of one explorer session.
type SessionBody struct {
	ID       string                   `json:"id" doc:"Session ID"`
	BaseMap  explorer.BaseMap         `json:"baseMap" doc:"Active base map"`
	Criteria explorer.Criteria        `json:"criteria" doc:"Current filter criteria"`
	Query    QueryBody                `json:"query" doc:"Study query state"`
	Overlays []explorer.OverlayStatus `json:"overlays" doc:"Overlay states in registry order"`
	Detail   *explorer.Detail         `json:"detail,omitempty" doc:"Detail of the selected study"`
	Controls explorer.Controls        `json:"controls" doc:"Which controls are usable"`
}

func sessionBody(s explorer.Snapshot) SessionBody {
	return SessionBody{
		ID:       s.ID,
		BaseMap:  s.BaseMap,
		Criteria: s.Criteria,
		Query:    queryBody(s.Query),
		Overlays: s.Overlays,
		Detail:   s.Detail,
		Controls: s.Controls,
	}
}

var (
	filterAction = humastar.ActionDef{Rel: "filter", Pattern: "/api/v1/sessions/%s/filter", Method: http.MethodPost, Title: "Apply filters"}
	resetAction  = humastar.ActionDef{Rel: "reset", Pattern: "/api/v1/sessions/%s/reset", Method: http.MethodPost, Title: "Reset filters"}
	exportAction = humastar.ActionDef{Rel: "export", Pattern: "/api/v1/sessions/%s/export", Method: http.MethodGet, Title: "Download CSV"}
	saveAction   = humastar.ActionDef{Rel: "save-export", Pattern: "/api/v1/sessions/%s/export/save", Method: http.MethodPost, Title: "Save CSV on the server"}
	closeAction  = humastar.ActionDef{Rel: "close-detail", Pattern: "/api/v1/sessions/%s/selection", Method: http.MethodDelete, Title: "Close detail"}
	deleteAction = humastar.ActionDef{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: http.MethodDelete, Title: "End session"}
)

// Actions implements humastar.Actor. Disabled controls have no link.
func (b SessionBody) Actions() []humastar.Action {
	var defs []humastar.ActionDef
	if !b.Controls.FilterDisabled {
		defs = append(defs, filterAction)
	}
	if !b.Controls.ResetDisabled {
		defs = append(defs, resetAction)
	}
	if !b.Controls.ExportDisabled {
		defs = append(defs, exportAction, saveAction)
	}
	if b.Detail != nil {
		defs = append(defs, closeAction)
	}
	defs = append(defs, deleteAction)
	return humastar.ActionsFor(b.ID, defs)
}

// DetailBody is the detail panel of a session.
type DetailBody struct {
	Selected bool             `json:"selected" doc:"Whether a study is selected"`
	Message  string           `json:"message,omitempty" doc:"Placeholder shown when nothing is selected"`
	Detail   *explorer.Detail `json:"detail,omitempty" doc:"Detail of the selected study"`
}

// EmptyDetailMessage is the detail panel text when nothing is selected.
const EmptyDetailMessage = "Select a study marker to view its details."

func detailBody(d *explorer.Detail) DetailBody {
	if d == nil {
		return DetailBody{Message: EmptyDetailMessage}
	}
	return DetailBody{Selected: true, Detail: d}
}
