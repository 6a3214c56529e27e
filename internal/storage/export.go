package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run        RunMetadata `json:"run"`
	Trajectory Trajectory  `json:"trajectory"`
	Inputs     []float64   `json:"inputs"`
}

// ExportJSON writes a stored run as a single JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	traj, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	inputs, err := s.LoadInputs(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Run: *meta, Trajectory: *traj, Inputs: inputs})
}
