package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/mpcsim/internal/config"
	"github.com/san-kum/mpcsim/internal/mpc"
	"github.com/san-kum/mpcsim/internal/plant"
	"github.com/san-kum/mpcsim/internal/sim"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
	inputsFile     = "inputs.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// BaseDir is the directory holding one subdirectory per run.
func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID           string             `json:"id"`
	Controller   string             `json:"controller"`
	PlantPreset  string             `json:"plant_preset"`
	Timestamp    time.Time          `json:"timestamp"`
	Steps        int                `json:"steps"`
	Period       int                `json:"period"`
	Horizon      int                `json:"horizon"`
	InitialState float64            `json:"initial_state"`
	Model        mpc.Dynamics       `json:"model"`
	Plant        plant.Affine       `json:"plant"`
	Weights      mpc.Weights        `json:"weights"`
	Bounds       mpc.Bounds         `json:"bounds"`
	Inputs       int                `json:"inputs"`
	Fallbacks    []sim.Fallback     `json:"fallbacks"`
	Metrics      map[string]float64 `json:"metrics"`
}

// NewRunMetadata describes a finished run of cfg.
func NewRunMetadata(cfg *config.Config, result *sim.Result) RunMetadata {
	return RunMetadata{
		Controller:   cfg.Controller,
		PlantPreset:  cfg.PlantPreset,
		Timestamp:    time.Now(),
		Steps:        result.StepsTaken(),
		Period:       cfg.Period,
		Horizon:      cfg.Horizon,
		InitialState: cfg.InitialState,
		Model:        cfg.Model,
		Plant:        cfg.Plant,
		Weights:      cfg.Weights,
		Bounds:       cfg.Bounds,
		Inputs:       len(result.Inputs),
		Fallbacks:    result.Fallbacks,
		Metrics:      result.Metrics,
	}
}

// Trajectory is the per-step history of a stored run. Applied has one
// entry fewer than States.
type Trajectory struct {
	States  []float64 `json:"states"`
	Applied []float64 `json:"applied"`
}

// Save writes a run directory and returns its id. An empty meta.ID is
// filled in from the controller name and timestamp.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%d", meta.Controller, meta.Timestamp.UnixNano())
	}
	runDir := s.RunDir(meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeFile(filepath.Join(runDir, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return "", err
	}

	traj := Trajectory{States: result.States, Applied: result.Applied}
	if err := writeFile(filepath.Join(runDir, trajectoryFile), func(w io.Writer) error {
		return WriteTrajectoryCSV(w, traj)
	}); err != nil {
		return "", err
	}

	if err := writeFile(filepath.Join(runDir, inputsFile), func(w io.Writer) error {
		return writeInputs(w, result.Inputs, meta.Period)
	}); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// RunDir is the directory of run id.
func (s *Store) RunDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// WriteArtifact stores an extra file such as a model dump in the run
// directory.
func (s *Store) WriteArtifact(id, name string, fn func(io.Writer) error) error {
	runDir := s.RunDir(id)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}
	return writeFile(filepath.Join(runDir, name), fn)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteTrajectoryCSV writes step,x,u rows. The final row carries the last
// state and an empty input.
func WriteTrajectoryCSV(w io.Writer, traj Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "x", "u"}); err != nil {
		return err
	}
	for i, x := range traj.States {
		u := ""
		if i < len(traj.Applied) {
			u = formatFloat(traj.Applied[i])
		}
		if err := cw.Write([]string{strconv.Itoa(i), formatFloat(x), u}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeInputs(w io.Writer, inputs []float64, period int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"solve", "step", "u"}); err != nil {
		return err
	}
	for i, u := range inputs {
		if err := cw.Write([]string{strconv.Itoa(i), strconv.Itoa(i * period), formatFloat(u)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(runID), metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) readCSV(runID, name string) ([][]string, error) {
	file, err := os.Open(filepath.Join(s.RunDir(runID), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, nil
	}
	return records[1:], nil
}

func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	records, err := s.readCSV(runID, trajectoryFile)
	if err != nil {
		return nil, err
	}
	traj := &Trajectory{
		States:  make([]float64, 0, len(records)),
		Applied: make([]float64, 0, len(records)),
	}
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("trajectory row %d: expected 3 fields, got %d", i+1, len(rec))
		}
		x, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("trajectory row %d: %w", i+1, err)
		}
		traj.States = append(traj.States, x)
		if rec[2] == "" {
			continue
		}
		u, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("trajectory row %d: %w", i+1, err)
		}
		traj.Applied = append(traj.Applied, u)
	}
	return traj, nil
}

func (s *Store) LoadInputs(runID string) ([]float64, error) {
	records, err := s.readCSV(runID, inputsFile)
	if err != nil {
		return nil, err
	}
	inputs := make([]float64, 0, len(records))
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("inputs row %d: expected 3 fields, got %d", i+1, len(rec))
		}
		u, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("inputs row %d: %w", i+1, err)
		}
		inputs = append(inputs, u)
	}
	return inputs, nil
}
