package reconstruct

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tanksight/refract3d/internal/camera"
	"github.com/tanksight/refract3d/internal/refraction"
)

// maxSetupFileSize bounds calibration file reads.
const maxSetupFileSize = 1 * 1024 * 1024 // 1MB

// Setup is the on-disk calibration bundle: one calibration per camera and
// the shared interface plane. The calibration subsystem that produces it
// is external; this loader only validates and instantiates.
type Setup struct {
	Cameras   map[string]camera.Calibration `json:"cameras" yaml:"cameras"`
	Interface refraction.Plane              `json:"interface" yaml:"interface"`
}

// LoadSetup reads a .json, .yaml or .yml calibration bundle and builds the
// validated camera models and refraction solver.
func LoadSetup(path string, solverCfg refraction.Config) (map[string]*camera.Model, *refraction.Solver, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat calibration file: %w", err)
	}
	if info.Size() > maxSetupFileSize {
		return nil, nil, fmt.Errorf("calibration file too large: %d bytes (max %d)", info.Size(), maxSetupFileSize)
	}
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var setup Setup
	switch ext {
	case ".json":
		if err := json.Unmarshal(raw, &setup); err != nil {
			return nil, nil, fmt.Errorf("failed to parse calibration JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &setup); err != nil {
			return nil, nil, fmt.Errorf("failed to parse calibration YAML: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("calibration file must be .json, .yaml or .yml, got %q", ext)
	}

	return BuildSetup(setup, solverCfg)
}

// BuildSetup validates a parsed Setup and instantiates the camera models
// and refraction solver.
func BuildSetup(setup Setup, solverCfg refraction.Config) (map[string]*camera.Model, *refraction.Solver, error) {
	if len(setup.Cameras) < 2 {
		return nil, nil, fmt.Errorf("calibration bundle has %d cameras, need at least 2", len(setup.Cameras))
	}
	cams := make(map[string]*camera.Model, len(setup.Cameras))
	for id, cal := range setup.Cameras {
		m, err := camera.NewModel(id, cal)
		if err != nil {
			return nil, nil, err
		}
		cams[id] = m
	}
	solver, err := refraction.NewSolver(setup.Interface, solverCfg)
	if err != nil {
		return nil, nil, err
	}
	return cams, solver, nil
}
