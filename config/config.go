// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the YAML configuration of a correction run.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile selects the data source of a run.
type Profile string

const (
	// ProfileMeasured corrects a recorded sweep and estimates the reversal
	// potential from the whole recording.
	ProfileMeasured Profile = "measured"
	// ProfileSimulated corrects the simulated GluR6 dataset with literature
	// parameters.
	ProfileSimulated Profile = "simulated"
)

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrInvalid        = errors.New("invalid configuration")
)

// Config is the complete configuration of a run.
type Config struct {
	Profile   Profile   `yaml:"profile"`
	Measured  Measured  `yaml:"measured"`
	Simulated Simulated `yaml:"simulated"`
	Output    Output    `yaml:"output"`
}

// Window is a sample range [Start, End) of a sweep.
type Window struct {
	Start  int  `yaml:"start"`
	End    int  `yaml:"end"`
	Detect bool `yaml:"detect"` // Locate the range from the command voltage steps
}

// Ladder describes evenly spaced command voltages, one per sweep.
type Ladder struct {
	Start float64 `yaml:"start"`
	Step  float64 `yaml:"step"`
}

// Peak locates the peak current used for the run summary.
type Peak struct {
	Skip      int `yaml:"skip"`
	HalfWidth int `yaml:"half_width"`
}

// Measured configures the measured-data profile.
type Measured struct {
	Input             string  `yaml:"input"`
	CurrentSignal     string  `yaml:"current_signal"`
	CommandSignal     string  `yaml:"command_signal"`
	Sweep             int     `yaml:"sweep"`
	Window            Window  `yaml:"window"`
	SteadyStateWindow int     `yaml:"steady_state_window"`
	CommandVoltages   *Ladder `yaml:"command_voltages,omitempty"`
	HoldingPotential  float64 `yaml:"holding_potential"`
	InvertHolding     bool    `yaml:"invert_holding"`
	SeriesResistance  float64 `yaml:"series_resistance"`
	Capacitance       float64 `yaml:"capacitance"`
	SampleInterval    float64 `yaml:"sample_interval"`
	CurrentScale      float64 `yaml:"current_scale"`
	VoltageScale      float64 `yaml:"voltage_scale"`
	Peak              Peak    `yaml:"peak"`
}

// Simulated configures the simulated-data profile.
type Simulated struct {
	HoldingPotential  float64 `yaml:"holding_potential"`
	ReversalPotential float64 `yaml:"reversal_potential"`
	SeriesResistance  float64 `yaml:"series_resistance"`
	Capacitance       float64 `yaml:"capacitance"`
	SampleInterval    float64 `yaml:"sample_interval"`
	TimeScale         float64 `yaml:"time_scale"`
	CurrentScale      float64 `yaml:"current_scale"`
	Peak              Peak    `yaml:"peak"`
}

// Output configures what a run writes.
type Output struct {
	Dir           string `yaml:"dir"`
	Summary       bool   `yaml:"summary"`
	EDF           bool   `yaml:"edf"`
	RecordSamples int    `yaml:"record_samples"`
}

// Default returns the configuration of the reference analysis.
func Default() Config {
	return Config{
		Profile: ProfileMeasured,
		Measured: Measured{
			Input:             "data/input/18227014.edf",
			CurrentSignal:     "Imon",
			CommandSignal:     "Vcmd",
			Sweep:             15,
			Window:            Window{Start: 18000, End: 80000},
			SteadyStateWindow: 200,
			CommandVoltages:   &Ladder{Start: -90, Step: 10},
			HoldingPotential:  0.06,
			InvertHolding:     true,
			SeriesResistance:  30e6,
			Capacitance:       3.4e-12,
			SampleInterval:    3e-5,
			CurrentScale:      1e-12,
			VoltageScale:      1e-3,
			Peak:              Peak{Skip: 550, HalfWidth: 5},
		},
		Simulated: Simulated{
			HoldingPotential:  0.06,
			ReversalPotential: 0.4,
			SeriesResistance:  60e6,
			Capacitance:       6e-12,
			SampleInterval:    3e-5,
			TimeScale:         1e-3,
			CurrentScale:      1e-12,
			Peak:              Peak{Skip: 0, HalfWidth: 1},
		},
		Output: Output{
			Dir:           "data/output",
			Summary:       true,
			EDF:           true,
			RecordSamples: 10000,
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML configuration over the defaults and validates it.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration of the selected profile.
func (c Config) Validate() error {
	switch c.Profile {
	case ProfileMeasured:
		if err := c.Measured.validate(); err != nil {
			return err
		}
	case ProfileSimulated:
		if err := c.Simulated.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProfile, c.Profile)
	}

	if c.Output.EDF && c.Output.RecordSamples < 1 {
		return fmt.Errorf("%w: output.record_samples must be positive", ErrInvalid)
	}
	return nil
}

func (m Measured) validate() error {
	switch {
	case m.Input == "":
		return fmt.Errorf("%w: measured.input is required", ErrInvalid)
	case m.CurrentSignal == "":
		return fmt.Errorf("%w: measured.current_signal is required", ErrInvalid)
	case m.CommandVoltages == nil && m.CommandSignal == "":
		return fmt.Errorf("%w: measured.command_voltages or measured.command_signal is required", ErrInvalid)
	case m.Window.Detect && m.CommandSignal == "":
		return fmt.Errorf("%w: measured.window.detect needs measured.command_signal", ErrInvalid)
	case m.Sweep < 0:
		return fmt.Errorf("%w: measured.sweep must not be negative", ErrInvalid)
	case !m.Window.Detect && (m.Window.Start < 0 || m.Window.End <= m.Window.Start):
		return fmt.Errorf("%w: measured.window [%d, %d) is empty", ErrInvalid, m.Window.Start, m.Window.End)
	case m.SteadyStateWindow < 1:
		return fmt.Errorf("%w: measured.steady_state_window must be positive", ErrInvalid)
	case !(m.SampleInterval > 0):
		return fmt.Errorf("%w: measured.sample_interval must be positive", ErrInvalid)
	case !(m.CurrentScale > 0) || !(m.VoltageScale > 0):
		return fmt.Errorf("%w: measured scales must be positive", ErrInvalid)
	case m.Peak.Skip < 0 || m.Peak.HalfWidth < 1:
		return fmt.Errorf("%w: measured.peak is out of range", ErrInvalid)
	}
	return nil
}

func (s Simulated) validate() error {
	switch {
	case !(s.SampleInterval > 0):
		return fmt.Errorf("%w: simulated.sample_interval must be positive", ErrInvalid)
	case !(s.TimeScale > 0) || !(s.CurrentScale > 0):
		return fmt.Errorf("%w: simulated scales must be positive", ErrInvalid)
	case s.Peak.Skip < 0 || s.Peak.HalfWidth < 1:
		return fmt.Errorf("%w: simulated.peak is out of range", ErrInvalid)
	}
	return nil
}
