// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/OpenPSG/vclamp"
	"github.com/OpenPSG/vclamp/config"
	"github.com/OpenPSG/vclamp/edf"
	"github.com/OpenPSG/vclamp/pipeline"
	"github.com/OpenPSG/vclamp/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	sweepSamples = 1000
	stepOn       = 100
	stepOff      = 800
	slope        = 10.0   // pA/mV
	intercept    = -500.0 // pA, reversal at 50 mV
)

// ivSweeps builds an IV protocol from -90 mV to 60 mV. Each sweep holds at
// -70 mV, steps to its command voltage at stepOn and 20 mV higher at stepOff.
func ivSweeps() vclamp.SweepSet {
	voltages := vclamp.VoltageLadder(-90, 10, 16)
	sweeps := make(vclamp.SweepSet, len(voltages))
	for n, v := range voltages {
		current := make([]float64, sweepSamples)
		command := make([]float64, sweepSamples)
		for i := range current {
			switch {
			case i < stepOn:
				command[i] = -70
				current[i] = slope*-70 + intercept
			case i < stepOff:
				command[i] = v
				current[i] = slope*v + intercept
			default:
				command[i] = v + 20
				current[i] = slope*(v+20) + intercept
			}
		}
		sweeps[n] = vclamp.Sweep{
			Command: command,
			Trace:   vclamp.Trace{Interval: 3e-5, Current: current},
		}
	}
	return sweeps
}

func measuredConfig() config.Config {
	cfg := config.Default()
	cfg.Measured.Window = config.Window{Start: stepOn, End: stepOff}
	cfg.Output.Summary = false
	cfg.Output.EDF = false
	return cfg
}

func newPipeline(cfg config.Config) *pipeline.Pipeline {
	return pipeline.New(cfg, zap.NewNop().Sugar())
}

func TestRunMeasured(t *testing.T) {
	sweeps := ivSweeps()

	res, err := newPipeline(measuredConfig()).RunMeasured(context.Background(), sweeps)
	require.NoError(t, err)

	assert.Equal(t, config.ProfileMeasured, res.Profile)
	assert.InDelta(t, 0.05, res.Params.Reversal, 1e-9)
	assert.Equal(t, -0.06, res.Params.Holding)
	assert.Equal(t, 30e6, res.Params.SeriesResistance)
	assert.Equal(t, 3e-5, res.Params.Interval)

	require.Equal(t, stepOff-stepOn, res.Raw.Len())
	assert.InDelta(t, 100e-12, res.Raw.Current[0], 1e-20)

	expected, err := vclamp.Correct(res.Raw, res.Params)
	require.NoError(t, err)
	assert.Equal(t, expected.Current, res.Corrected.Current)
	assert.Equal(t, 0.0, res.Corrected.Current[res.Corrected.Len()-1])

	require.NotNil(t, res.Summary)
	assert.InDelta(t, 100e-12, res.Summary.RawPeak, 1e-20)

	// The input sweeps are left untouched.
	for _, sweep := range sweeps {
		assert.Equal(t, 0.0, sweep.Voltage)
	}
}

func TestRunMeasuredDetectsWindow(t *testing.T) {
	cfg := measuredConfig()
	cfg.Measured.Window = config.Window{Detect: true}
	cfg.Measured.CommandVoltages = nil

	res, err := newPipeline(cfg).RunMeasured(context.Background(), ivSweeps())
	require.NoError(t, err)

	assert.Equal(t, config.Window{Start: stepOn, End: stepOff, Detect: true}, res.Window)
	assert.InDelta(t, 0.05, res.Params.Reversal, 1e-9)
}

func TestRunMeasuredErrors(t *testing.T) {
	t.Run("SweepOutOfRange", func(t *testing.T) {
		cfg := measuredConfig()
		cfg.Measured.Sweep = 16

		_, err := newPipeline(cfg).RunMeasured(context.Background(), ivSweeps())
		require.ErrorIs(t, err, vclamp.ErrInvalidParameter)
	})

	t.Run("DegenerateRegression", func(t *testing.T) {
		cfg := measuredConfig()
		cfg.Measured.CommandVoltages = &config.Ladder{Start: -40, Step: 0}

		_, err := newPipeline(cfg).RunMeasured(context.Background(), ivSweeps())
		require.ErrorIs(t, err, vclamp.ErrDegenerateRegression)
	})

	t.Run("NoStep", func(t *testing.T) {
		cfg := measuredConfig()
		cfg.Measured.Window = config.Window{Detect: true}

		sweeps := ivSweeps()
		sweeps[15].Command = make([]float64, sweepSamples)

		_, err := newPipeline(cfg).RunMeasured(context.Background(), sweeps)
		require.ErrorIs(t, err, vclamp.ErrInvalidParameter)
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newPipeline(measuredConfig()).RunMeasured(ctx, ivSweeps())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunSimulated(t *testing.T) {
	cfg := config.Default()
	cfg.Profile = config.ProfileSimulated

	res, err := newPipeline(cfg).RunSimulated(context.Background())
	require.NoError(t, err)

	curve := synth.GluR6()
	require.Equal(t, curve.Len(), res.Raw.Len())
	require.Equal(t, curve.Len(), res.Corrected.Len())

	assert.Equal(t, pipeline.SimulatedName, res.Name)
	assert.Equal(t, 0.4, res.Params.Reversal)
	assert.Equal(t, 0.06, res.Params.Holding)
	assert.InDelta(t, 1650e-12, res.Raw.Current[15], 1e-18)
	assert.InDelta(t, curve.X[15]*1e-3, res.Raw.TimeAt(15), 1e-15)
	assert.Equal(t, res.Raw.Time, res.Corrected.Time)
	assert.Equal(t, 0.0, res.Corrected.Current[res.Corrected.Len()-1])

	require.NotNil(t, res.Summary)
	assert.InDelta(t, 1650e-12, res.Summary.RawPeak, 100e-12)
}

func writeRecording(t *testing.T, filename string, sweeps vclamp.SweepSet) {
	f, err := os.Create(filename)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	ew, err := edf.Create(f, edf.Header{
		PatientID:          "Cell 1",
		StartTime:          time.Date(2018, time.February, 27, 14, 5, 0, 0, time.UTC),
		DataRecordDuration: sweepSamples * 30 * time.Microsecond,
		Signals: []edf.Signal{
			{Label: "Imon", PhysicalDimension: "pA", PhysicalMin: -2000, PhysicalMax: 2000, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: sweepSamples},
			{Label: "Vcmd", PhysicalDimension: "mV", PhysicalMin: -200, PhysicalMax: 200, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: sweepSamples},
		},
	})
	require.NoError(t, err)

	for _, sweep := range sweeps {
		require.NoError(t, ew.WriteRecord([][]float64{sweep.Trace.Current, sweep.Command}))
	}
	require.NoError(t, ew.Close())
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "18227014.edf")
	writeRecording(t, input, ivSweeps())

	cfg := measuredConfig()
	cfg.Measured.Input = input
	cfg.Measured.Window = config.Window{Detect: true}
	cfg.Measured.CommandVoltages = nil
	cfg.Output = config.Output{Dir: filepath.Join(dir, "out"), Summary: true, EDF: true, RecordSamples: 256}

	res, err := newPipeline(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "18227014", res.Name)
	assert.InDelta(t, 0.05, res.Params.Reversal, 1e-4)

	b, err := os.ReadFile(filepath.Join(dir, "out", "currents_18227014_notcorrected"))
	require.NoError(t, err)
	rawPeak, err := strconv.ParseFloat(string(b), 64)
	require.NoError(t, err)
	assert.InDelta(t, 100e-12, rawPeak, 1e-13)

	_, err = os.Stat(filepath.Join(dir, "out", "currents_18227014_corrected"))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "out", "corrected_18227014.edf"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	er, err := edf.Open(f)
	require.NoError(t, err)
	assert.Equal(t, 3, er.Records())

	idx, err := er.SignalIndex("Icorr")
	require.NoError(t, err)
	record, err := er.ReadRecord(0)
	require.NoError(t, err)
	assert.InDelta(t, res.Corrected.Current[0]*1e12, record[idx][0], 0.1)
}

func TestRunMissingInput(t *testing.T) {
	cfg := measuredConfig()
	cfg.Measured.Input = filepath.Join(t.TempDir(), "missing.edf")

	_, err := newPipeline(cfg).Run(context.Background())
	require.Error(t, err)
}

func TestLoadSweepsMissingSignal(t *testing.T) {
	input := filepath.Join(t.TempDir(), "cell.edf")
	writeRecording(t, input, ivSweeps())

	f, err := os.Open(input)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	m := config.Default().Measured
	m.CurrentSignal = "Iref"

	_, err = pipeline.LoadSweeps(f, m)
	require.ErrorIs(t, err, edf.ErrSignalNotFound)

	m = config.Default().Measured
	sweeps, err := pipeline.LoadSweeps(f, m)
	require.NoError(t, err)
	require.Len(t, sweeps, 16)
	assert.InDelta(t, 3e-5, sweeps[0].Trace.Interval, 1e-9)
	assert.InDelta(t, 60, sweeps[15].Command[stepOn], 0.01)
}

func TestLoadSweepsUnfinalizedRecording(t *testing.T) {
	input := filepath.Join(t.TempDir(), "interrupted.edf")
	f, err := os.Create(input)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		StartTime:          time.Date(2018, time.February, 27, 14, 5, 0, 0, time.UTC),
		DataRecordDuration: sweepSamples * 30 * time.Microsecond,
		Signals: []edf.Signal{
			{Label: "Imon", PhysicalDimension: "pA", PhysicalMin: -2000, PhysicalMax: 2000, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: sweepSamples},
			{Label: "Vcmd", PhysicalDimension: "mV", PhysicalMin: -200, PhysicalMax: 200, DigitalMin: -32768, DigitalMax: 32767, SamplesPerRecord: sweepSamples},
		},
	})
	require.NoError(t, err)

	// The writer is never closed, so the header keeps an unknown record count.
	for _, sweep := range ivSweeps()[:4] {
		require.NoError(t, ew.WriteRecord([][]float64{sweep.Trace.Current, sweep.Command}))
	}

	sweeps, err := pipeline.LoadSweeps(f, config.Default().Measured)
	require.NoError(t, err)
	require.Len(t, sweeps, 4)
	assert.InDelta(t, -60, sweeps[3].Command[stepOn], 0.01)
}
