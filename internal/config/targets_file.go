package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TargetsFile is the optional YAML overlay for downstream addresses and
// call timeouts.
//
//	targets:
//	  auth: http://auth:5001
//	  feature_flags: http://flags:5002
//	  plots: http://plots:5003
//	  reports: http://reports:5004
//	timeouts:
//	  mode: 2s
//	  health: 2s
//	  request: 5s
type TargetsFile struct {
	Targets  FileTargets  `yaml:"targets"`
	Timeouts FileTimeouts `yaml:"timeouts"`
}

// FileTargets mirrors Targets with YAML keys.
type FileTargets struct {
	Auth    string `yaml:"auth"`
	Flags   string `yaml:"feature_flags"`
	Plots   string `yaml:"plots"`
	Reports string `yaml:"reports"`
}

// FileTimeouts holds per-call timeouts.
type FileTimeouts struct {
	Mode    Duration `yaml:"mode"`
	Health  Duration `yaml:"health"`
	Request Duration `yaml:"request"`
}

func defaultTargetsFile() TargetsFile {
	return TargetsFile{
		Targets: FileTargets{
			Auth:    "http://localhost:5001",
			Flags:   "http://localhost:5002",
			Plots:   "http://localhost:5003",
			Reports: "http://localhost:5004",
		},
		Timeouts: FileTimeouts{
			Mode:    Duration(2 * time.Second),
			Health:  Duration(2 * time.Second),
			Request: Duration(5 * time.Second),
		},
	}
}

// LoadTargetsFile reads and parses a YAML targets file.
func LoadTargetsFile(path string) (TargetsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TargetsFile{}, err
	}
	var f TargetsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return TargetsFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// merge returns base with every non-zero field of overlay applied.
func (base TargetsFile) merge(overlay TargetsFile) TargetsFile {
	out := base
	if overlay.Targets.Auth != "" {
		out.Targets.Auth = overlay.Targets.Auth
	}
	if overlay.Targets.Flags != "" {
		out.Targets.Flags = overlay.Targets.Flags
	}
	if overlay.Targets.Plots != "" {
		out.Targets.Plots = overlay.Targets.Plots
	}
	if overlay.Targets.Reports != "" {
		out.Targets.Reports = overlay.Targets.Reports
	}
	if overlay.Timeouts.Mode != 0 {
		out.Timeouts.Mode = overlay.Timeouts.Mode
	}
	if overlay.Timeouts.Health != 0 {
		out.Timeouts.Health = overlay.Timeouts.Health
	}
	if overlay.Timeouts.Request != 0 {
		out.Timeouts.Request = overlay.Timeouts.Request
	}
	return out
}
