// Package study keeps comparison outputs of one investigation together on
// disk. Analysis itself is stateless; a study only collects its reports.
package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/KaramelBytes/twincheck-cli/internal/analysis"
	"github.com/KaramelBytes/twincheck-cli/internal/utils"
)

const (
	studyFileName = "study.json"
	runsDir       = "runs"
)

// Run is one recorded comparison.
type Run struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Tolerance    float64   `json:"tolerance_percent"`
	PairOnly     bool      `json:"pair_only"`
	TotalVirtual int       `json:"total_virtual"`
	Matched      int       `json:"matched_count"`
	Lost         int       `json:"lost_matches"`
	Inputs       []string  `json:"inputs,omitempty"`
	// Report and Data are paths relative to the study directory.
	Report string `json:"report"`
	Data   string `json:"data"`
}

// Study is a named collection of runs persisted as study.json.
type Study struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Runs        []Run     `json:"runs"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	rootDir string
}

// New constructs an in-memory study. Call Save to persist.
func New(name, description, rootDir string) *Study {
	now := time.Now()
	return &Study{Name: name, Description: description, CreatedAt: now, UpdatedAt: now, rootDir: rootDir}
}

// Load reads study.json from dir.
func Load(dir string) (*Study, error) {
	path := filepath.Join(dir, studyFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("study not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read study: %w", err)
	}
	var s Study
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse study: %w", err)
	}
	s.rootDir = dir
	return &s, nil
}

// Exists reports whether dir holds a study.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, studyFileName))
	return err == nil
}

// RootDir returns the on-disk study directory.
func (s *Study) RootDir() string { return s.rootDir }

// Save writes study.json atomically.
func (s *Study) Save() error {
	if s.rootDir == "" {
		return errors.New("study root directory not set")
	}
	if err := utils.EnsureDir(s.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	s.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, studyFileName), data)
}

// AddRun stores the Markdown and YAML renderings of rep under runs/ and
// records the run. The caller saves the study.
func (s *Study) AddRun(rep *analysis.Report) (Run, error) {
	if s.rootDir == "" {
		return Run{}, errors.New("study root directory not set")
	}
	dir := filepath.Join(s.rootDir, runsDir)
	if err := utils.EnsureDir(dir); err != nil {
		return Run{}, fmt.Errorf("ensure runs dir: %w", err)
	}
	data, err := rep.YAML()
	if err != nil {
		return Run{}, fmt.Errorf("render run data: %w", err)
	}
	run := Run{
		ID:           rep.ID,
		CreatedAt:    rep.CreatedAt,
		Tolerance:    rep.Tolerance,
		PairOnly:     rep.PairOnly,
		TotalVirtual: rep.TotalVirtual,
		Matched:      rep.Matched,
		Lost:         rep.Lost,
		Report:       filepath.Join(runsDir, rep.ID+".md"),
		Data:         filepath.Join(runsDir, rep.ID+".yaml"),
	}
	for _, in := range rep.Inputs {
		run.Inputs = append(run.Inputs, in.Name)
	}
	if err := utils.SafeWriteFile(filepath.Join(s.rootDir, run.Report), []byte(rep.Markdown())); err != nil {
		return Run{}, err
	}
	if err := utils.SafeWriteFile(filepath.Join(s.rootDir, run.Data), data); err != nil {
		return Run{}, err
	}
	s.Runs = append(s.Runs, run)
	s.UpdatedAt = time.Now()
	return run, nil
}

// List returns the names of the studies under dir, sorted.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read studies dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && Exists(filepath.Join(dir, e.Name())) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
