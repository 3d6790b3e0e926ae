package service

import "time"

// ExportFile is a CSV export kept on the server.
type ExportFile struct {
	Session  string    `json:"session" doc:"Session the export was taken from" example:"headless"`
	Name     string    `json:"name" doc:"File name" example:"traffic_studies.csv"`
	Size     string    `json:"size" doc:"Human-readable file size" example:"1.2 KB"`
	Modified time.Time `json:"modified" doc:"When the export was written"`
}
