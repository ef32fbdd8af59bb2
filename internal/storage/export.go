package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/looptune/internal/dynamo"
)

type ExportData struct {
	Meta    RunMetadata        `json:"meta"`
	Steps   int                `json:"steps"`
	Points  []dynamo.Point     `json:"points"`
	Metrics map[string]float64 `json:"metrics"`
}

// ExportJSON writes a run and its metadata as one indented JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, run *dynamo.Run) error {
	data := ExportData{
		Meta:    meta,
		Steps:   run.Len(),
		Points:  run.Points,
		Metrics: run.Metrics,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
