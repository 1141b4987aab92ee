// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package pipeline drives a correction run: it selects the parameters of the
// data source, converts units, estimates the reversal potential when needed
// and corrects the trace.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPSG/vclamp"
	"github.com/OpenPSG/vclamp/config"
	"github.com/OpenPSG/vclamp/edf"
	"github.com/OpenPSG/vclamp/synth"
	"go.uber.org/zap"
)

// SimulatedName names the outputs of the simulated profile.
const SimulatedName = "gluR6"

// Summary holds the peak currents of one run, in amperes.
type Summary struct {
	RawPeak       float64
	CorrectedPeak float64
}

// Result is the outcome of one correction run.
type Result struct {
	Profile   config.Profile
	Name      string
	Window    config.Window // Sample range of the corrected sweep, measured profile only
	Params    vclamp.Parameters
	Raw       vclamp.Trace // Unit-normalized source trace
	Corrected vclamp.CorrectedTrace
	Summary   *Summary // nil when the trace is too short to locate a peak
}

// Pipeline runs corrections for one configuration.
type Pipeline struct {
	cfg config.Config
	log *zap.SugaredLogger
}

// New creates a pipeline.
func New(cfg config.Config, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{cfg: cfg, log: logger}
}

// Run corrects the data of the configured profile and writes the outputs.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result
	var err error

	switch p.cfg.Profile {
	case config.ProfileMeasured:
		res, err = p.runMeasuredFile(ctx)
	case config.ProfileSimulated:
		res, err = p.RunSimulated(ctx)
	default:
		err = fmt.Errorf("%w: %q", config.ErrUnknownProfile, p.cfg.Profile)
	}
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := p.write(res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Pipeline) runMeasuredFile(ctx context.Context) (Result, error) {
	m := p.cfg.Measured

	f, err := os.Open(m.Input)
	if err != nil {
		return Result{}, fmt.Errorf("error opening recording: %w", err)
	}
	defer f.Close()

	sweeps, err := LoadSweeps(f, m)
	if err != nil {
		return Result{}, err
	}
	p.log.Infow("Loaded recording", "input", m.Input, "sweeps", len(sweeps))

	res, err := p.RunMeasured(ctx, sweeps)
	if err != nil {
		return Result{}, err
	}
	res.Name = strings.TrimSuffix(filepath.Base(m.Input), filepath.Ext(m.Input))
	return res, nil
}

// LoadSweeps reads every data record of an EDF recording as a sweep. Command
// voltages are left for RunMeasured to assign.
func LoadSweeps(r io.ReadSeeker, m config.Measured) (vclamp.SweepSet, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, fmt.Errorf("error opening recording: %w", err)
	}

	current, err := er.SignalIndex(m.CurrentSignal)
	if err != nil {
		return nil, err
	}
	command := -1
	if m.CommandSignal != "" {
		if command, err = er.SignalIndex(m.CommandSignal); err != nil {
			if m.CommandVoltages == nil || m.Window.Detect {
				return nil, err
			}
			command = -1
		}
	}

	interval := er.Header().SampleInterval(current)
	sweeps := make(vclamp.SweepSet, 0, er.Records())
	err = er.Sweeps(func(_ int, record [][]float64) error {
		sweep := vclamp.Sweep{Trace: vclamp.Trace{Interval: interval, Current: record[current]}}
		if command >= 0 {
			sweep.Command = record[command]
		}
		sweeps = append(sweeps, sweep)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sweeps, nil
}

// RunMeasured corrects the configured sweep of a recording, estimating the
// reversal potential from all of its sweeps. The sweeps are not modified.
func (p *Pipeline) RunMeasured(ctx context.Context, sweeps vclamp.SweepSet) (Result, error) {
	m := p.cfg.Measured

	if m.Sweep >= len(sweeps) {
		return Result{}, fmt.Errorf("%w: sweep %d not in recording of %d sweeps", vclamp.ErrInvalidParameter, m.Sweep, len(sweeps))
	}
	sweep := sweeps[m.Sweep]

	window, err := p.window(sweep)
	if err != nil {
		return Result{}, err
	}
	p.log.Debugw("Selected window", "sweep", m.Sweep, "start", window.Start, "end", window.End)

	set, err := p.commandVoltages(sweeps, window.End)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vrev, err := vclamp.EstimateReversalPotential(set, m.SteadyStateWindow, window.End)
	if err != nil {
		return Result{}, fmt.Errorf("error estimating reversal potential: %w", err)
	}
	vrev *= m.VoltageScale
	p.log.Infow("Estimated reversal potential", "v_rev", vrev)

	slice, err := sweep.Trace.Slice(window.Start, window.End)
	if err != nil {
		return Result{}, err
	}
	if rec := slice.Interval; rec > 0 && math.Abs(rec-m.SampleInterval) > 0.01*m.SampleInterval {
		p.log.Warnw("Recording sample interval differs from configuration",
			"recording", rec, "configured", m.SampleInterval)
	}
	raw := slice.Scaled(1, m.CurrentScale)
	raw.Interval = m.SampleInterval

	holding := m.HoldingPotential
	if m.InvertHolding {
		holding = -holding
	}

	res, err := p.correct(ctx, raw, vclamp.Parameters{
		Holding:          holding,
		Reversal:         vrev,
		SeriesResistance: m.SeriesResistance,
		Capacitance:      m.Capacitance,
		Interval:         m.SampleInterval,
	}, m.Peak)
	if err != nil {
		return Result{}, err
	}

	res.Profile = config.ProfileMeasured
	res.Window = window
	return res, nil
}

// RunSimulated corrects the simulated GluR6 dataset with literature
// parameters.
func (p *Pipeline) RunSimulated(ctx context.Context) (Result, error) {
	s := p.cfg.Simulated

	curve := synth.GluR6()
	raw := vclamp.Trace{Time: curve.X, Current: curve.Y}.Scaled(s.TimeScale, s.CurrentScale)
	raw.Interval = s.SampleInterval
	p.log.Infow("Generated simulated dataset", "samples", raw.Len())

	res, err := p.correct(ctx, raw, vclamp.Parameters{
		Holding:          s.HoldingPotential,
		Reversal:         s.ReversalPotential,
		SeriesResistance: s.SeriesResistance,
		Capacitance:      s.Capacitance,
		Interval:         s.SampleInterval,
	}, s.Peak)
	if err != nil {
		return Result{}, err
	}

	res.Profile = config.ProfileSimulated
	res.Name = SimulatedName
	return res, nil
}

func (p *Pipeline) correct(ctx context.Context, raw vclamp.Trace, params vclamp.Parameters, peak config.Peak) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	p.log.Infow("Correcting trace",
		"samples", raw.Len(),
		"v_hold", params.Holding,
		"v_rev", params.Reversal,
		"rs", params.SeriesResistance,
		"cm", params.Capacitance,
		"interval", params.Interval)

	corrected, err := vclamp.Correct(raw, params)
	if err != nil {
		return Result{}, fmt.Errorf("error correcting trace: %w", err)
	}

	res := Result{Params: params, Raw: raw, Corrected: corrected}

	rawPeak, err := vclamp.PeakAverage(raw.Current, peak.Skip, peak.HalfWidth)
	if err == nil {
		var correctedPeak float64
		correctedPeak, err = vclamp.PeakAverage(corrected.Current, peak.Skip, peak.HalfWidth)
		if err == nil {
			res.Summary = &Summary{RawPeak: rawPeak, CorrectedPeak: correctedPeak}
			p.log.Infow("Peak current", "raw", rawPeak, "corrected", correctedPeak)
		}
	}
	if err != nil {
		p.log.Warnw("No peak summary", "error", err)
	}

	return res, nil
}

// window returns the sample range of the sweep to correct.
func (p *Pipeline) window(sweep vclamp.Sweep) (config.Window, error) {
	w := p.cfg.Measured.Window
	if !w.Detect {
		return w, nil
	}

	start, ok := vclamp.DetectStep(sweep.Command, 0, vclamp.StepThreshold)
	if !ok {
		return config.Window{}, fmt.Errorf("%w: no command voltage step in sweep %d", vclamp.ErrInvalidParameter, p.cfg.Measured.Sweep)
	}
	end, ok := vclamp.DetectStep(sweep.Command, start, vclamp.StepThreshold)
	if !ok {
		end = len(sweep.Command)
	}

	return config.Window{Start: start, End: end, Detect: true}, nil
}

// commandVoltages returns a copy of the sweeps with their command voltages
// assigned, either from the configured ladder or from the mean recorded
// command over the steady-state window.
func (p *Pipeline) commandVoltages(sweeps vclamp.SweepSet, end int) (vclamp.SweepSet, error) {
	m := p.cfg.Measured
	set := append(vclamp.SweepSet(nil), sweeps...)

	if m.CommandVoltages != nil {
		for i, v := range vclamp.VoltageLadder(m.CommandVoltages.Start, m.CommandVoltages.Step, len(set)) {
			set[i].Voltage = v
		}
		return set, nil
	}

	for i := range set {
		v, err := vclamp.SteadyState(set[i].Command, m.SteadyStateWindow, end)
		if err != nil {
			return nil, fmt.Errorf("error reading command voltage of sweep %d: %w", i, err)
		}
		set[i].Voltage = v
	}
	return set, nil
}
