// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenPSG/vclamp/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.ProfileMeasured, cfg.Profile)
	assert.Equal(t, 200, cfg.Measured.SteadyStateWindow)
	assert.Equal(t, 0.4, cfg.Simulated.ReversalPotential)
	assert.Equal(t, 60e6, cfg.Simulated.SeriesResistance)
}

func TestLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "vclamp.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(`
profile: measured
measured:
  input: cell.edf
  sweep: 3
  window:
    detect: true
  command_voltages: null
  series_resistance: 1.5e+7
  capacitance: 2.0e-12
output:
  dir: out
  edf: false
`), 0o644))

	cfg, err := config.Load(filename)
	require.NoError(t, err)

	assert.Equal(t, "cell.edf", cfg.Measured.Input)
	assert.Equal(t, 3, cfg.Measured.Sweep)
	assert.True(t, cfg.Measured.Window.Detect)
	assert.Nil(t, cfg.Measured.CommandVoltages)
	assert.Equal(t, 1.5e7, cfg.Measured.SeriesResistance)
	assert.Equal(t, 2e-12, cfg.Measured.Capacitance)
	assert.False(t, cfg.Output.EDF)
	assert.Equal(t, "out", cfg.Output.Dir)

	// Unset fields keep their defaults.
	assert.Equal(t, "Imon", cfg.Measured.CurrentSignal)
	assert.Equal(t, 3e-5, cfg.Measured.SampleInterval)
	assert.True(t, cfg.Measured.InvertHolding)
}

func TestParseSimulated(t *testing.T) {
	cfg, err := config.Parse([]byte("profile: simulated\nsimulated:\n  reversal_potential: 0.35\n"))
	require.NoError(t, err)

	assert.Equal(t, config.ProfileSimulated, cfg.Profile)
	assert.Equal(t, 0.35, cfg.Simulated.ReversalPotential)
	assert.Equal(t, 6e-12, cfg.Simulated.Capacitance)
}

func TestParseInvalid(t *testing.T) {
	_, err := config.Parse([]byte("profile: replay\n"))
	require.ErrorIs(t, err, config.ErrUnknownProfile)

	_, err = config.Parse([]byte("profile: simulated\nsimulated:\n  sample_interval: 0\n"))
	require.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Parse([]byte("measured:\n  window: {start: 100, end: 50}\n"))
	require.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Parse([]byte("measured:\n  steady_state_window: 0\n"))
	require.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Parse([]byte("measured: [1, 2]\n"))
	require.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
