// Package storage keeps simulation runs on disk, one directory per run:
// metadata.json, trajectory.csv and the loop.yaml that produced it.
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

	"github.com/google/uuid"

	"github.com/san-kum/looptune/internal/config"
	"github.com/san-kum/looptune/internal/dynamo"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
	loopFile       = "loop.yaml"
)

// Columns is the trajectory.csv header, in dynamo.Point field order.
var Columns = []string{"t", "sp", "pv", "op", "d", "valve", "predicted"}

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Model     string             `json:"model"`
	Family    string             `json:"family"`
	Params    map[string]float64 `json:"params"`
	Tuning    string             `json:"tuning,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Dt        float64            `json:"dt"`
	Duration  float64            `json:"duration"`
	NoiseStd  float64            `json:"noise_std"`
	Points    int                `json:"points"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes a run under a fresh id and returns the completed metadata.
// cfg may be nil; when set it is stored as loop.yaml.
func (s *Store) Save(meta RunMetadata, cfg *config.Config, run *dynamo.Run) (RunMetadata, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = s.now().UTC()
	}
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%s", meta.Timestamp.Format("20060102T150405"), uuid.NewString()[:8])
	}
	meta.Points = run.Len()
	meta.Metrics = run.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return meta, err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return meta, err
	}

	f, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return meta, err
	}
	defer f.Close()
	if err := WriteCSV(f, run); err != nil {
		return meta, err
	}

	if cfg != nil {
		if err := config.Save(filepath.Join(runDir, loopFile), cfg); err != nil {
			return meta, err
		}
	}
	return meta, nil
}

// List returns every readable run, newest first.
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
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	return &meta, nil
}

// LoadRun reads the trajectory back, with the metrics from metadata.
func (s *Store) LoadRun(runID string) (*dynamo.Run, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	run, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", runID, err)
	}
	run.Metrics = meta.Metrics
	return run, nil
}

// LoadConfig returns the loop config saved with the run.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, loopFile))
}

// Delete removes a run directory.
func (s *Store) Delete(runID string) error {
	if _, err := s.Load(runID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteCSV writes a trajectory with the Columns header.
func WriteCSV(w io.Writer, run *dynamo.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range run.Points {
		row := make([]string, 0, len(Columns))
		for _, v := range [...]float64{p.T, p.Setpoint, p.PV, p.OP, p.Disturbance, p.Valve, p.Predicted} {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a trajectory written by WriteCSV.
func ReadCSV(r io.Reader) (*dynamo.Run, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	for i, name := range Columns {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", header[i], i, name)
		}
	}

	run := &dynamo.Run{Points: make([]dynamo.Point, 0), Metrics: make(map[string]float64)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var v [7]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		run.Points = append(run.Points, dynamo.Point{
			T: v[0], Setpoint: v[1], PV: v[2], OP: v[3], Disturbance: v[4], Valve: v[5], Predicted: v[6],
		})
	}
	return run, nil
}
