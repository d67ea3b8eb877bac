// Package config loads run configuration files: which script to run, its
// parameter overrides, where data goes and how instruments are reached.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure/alarm"
)

// TimestampLayout names data files, e.g. 2026-03-01_09h30m00s.
const TimestampLayout = "2006-01-02_15h04m05s"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RunConfig is one run configuration file.
type RunConfig struct {
	// Script is the registered script name.
	Script string `json:"script" yaml:"script"`
	// Params overrides script parameter defaults.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	// DataDir receives the data file; defaults to the current directory.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	// Comment is appended to the data file name.
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
	// Instruments maps instrument names used by the script to hardware.
	Instruments map[string]instrument.Config `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	// Database is the run catalogue; empty disables it.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	// Listen is the address of the debug control surface; empty disables it.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
	// AbortOn lists alarm severities that stop the run when triggered.
	AbortOn []string `json:"abort_on,omitempty" yaml:"abort_on,omitempty"`
	// Bookkeeping adds step and elapsed columns to the data file.
	Bookkeeping bool `json:"bookkeeping,omitempty" yaml:"bookkeeping,omitempty"`
}

// LoadRunConfig loads a RunConfig from a .json, .yaml or .yml file of at
// most 1MB and validates it.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RunConfig{}
	if ext == ".json" {
		err = decodeJSON(data, cfg)
	} else {
		err = decodeYAML(data, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decodeJSON(data []byte, cfg *RunConfig) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *RunConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.Script) == "" {
		return fmt.Errorf("script is required")
	}
	for name, inst := range c.Instruments {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("instrument %s: %w", name, err)
		}
	}
	if _, err := c.AbortSeverities(); err != nil {
		return err
	}
	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
		}
	}
	if strings.ContainsAny(c.Comment, `/\`) {
		return fmt.Errorf("comment %q must not contain path separators", c.Comment)
	}
	return nil
}

// AbortSeverities parses AbortOn.
func (c *RunConfig) AbortSeverities() ([]alarm.Severity, error) {
	var out []alarm.Severity
	for _, s := range c.AbortOn {
		sev, err := alarm.ParseSeverity(s)
		if err != nil {
			return nil, fmt.Errorf("abort_on: %w", err)
		}
		if sev == alarm.ShowValue {
			return nil, fmt.Errorf("abort_on: show_value alarms cannot stop a run")
		}
		out = append(out, sev)
	}
	return out, nil
}

// DataFile returns the data file path for a run starting at t:
// <data_dir>/<timestamp>_<comment>.txt.
func (c *RunConfig) DataFile(t time.Time) string {
	dir := c.DataDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, t.Format(TimestampLayout)+"_"+c.Comment+".txt")
}
