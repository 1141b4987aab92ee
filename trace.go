// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package vclamp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StepThreshold is the default rise (mV) that marks a command voltage step.
const StepThreshold = 3.0

// SteadyState returns the mean of the window samples ending just before index.
func SteadyState(current []float64, window, index int) (float64, error) {
	if window < 1 {
		return 0, fmt.Errorf("%w: steady state window must be at least 1, got %d", ErrInvalidParameter, window)
	}
	if index < window || index > len(current) {
		return 0, fmt.Errorf("%w: steady state index %d out of range for window %d and %d samples",
			ErrInvalidParameter, index, window, len(current))
	}
	return stat.Mean(current[index-window:index], nil), nil
}

// DetectStep returns the first index at or after from where the command
// voltage exceeds command[from] by more than threshold.
func DetectStep(command []float64, from int, threshold float64) (int, bool) {
	if from < 0 || from >= len(command) {
		return 0, false
	}
	base := command[from]
	for i := from; i < len(command); i++ {
		if command[i] > base+threshold {
			return i, true
		}
	}
	return 0, false
}

// PeakAverage locates the largest value after the first skip samples and
// returns the mean of the 2*halfWidth samples centred on it.
func PeakAverage(current []float64, skip, halfWidth int) (float64, error) {
	if skip < 0 || skip >= len(current) {
		return 0, fmt.Errorf("%w: peak search offset %d out of range for %d samples", ErrInvalidParameter, skip, len(current))
	}
	if halfWidth < 1 {
		return 0, fmt.Errorf("%w: peak half width must be at least 1, got %d", ErrInvalidParameter, halfWidth)
	}

	peak := skip + floats.MaxIdx(current[skip:])
	lo, hi := peak-halfWidth, peak+halfWidth
	if lo < 0 || hi > len(current) {
		return 0, fmt.Errorf("%w: peak at %d too close to trace boundary", ErrInvalidParameter, peak)
	}

	return stat.Mean(current[lo:hi], nil), nil
}

// MaxCurrents returns the largest current of every sweep. Empty sweeps
// report negative infinity.
func MaxCurrents(sweeps SweepSet) []float64 {
	peaks := make([]float64, len(sweeps))
	for i, sweep := range sweeps {
		if sweep.Trace.Len() == 0 {
			peaks[i] = math.Inf(-1)
			continue
		}
		peaks[i] = floats.Max(sweep.Trace.Current)
	}
	return peaks
}

// VoltageLadder returns n command voltages starting at start, step apart.
func VoltageLadder(start, step float64, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = start + float64(i)*step
	}
	return v
}

// Slice returns the samples in [start, end) as a new trace.
func (t Trace) Slice(start, end int) (Trace, error) {
	if start < 0 || end > len(t.Current) || start > end {
		return Trace{}, fmt.Errorf("%w: slice [%d, %d) out of range for %d samples", ErrInvalidParameter, start, end, len(t.Current))
	}

	s := Trace{
		Interval: t.Interval,
		Current:  append([]float64(nil), t.Current[start:end]...),
	}
	if t.Time != nil {
		s.Time = append([]float64(nil), t.Time[start:end]...)
	}
	return s, nil
}

// Scaled returns a copy of the trace with time and current multiplied by the
// given factors.
func (t Trace) Scaled(timeScale, currentScale float64) Trace {
	s := Trace{
		Interval: t.Interval * timeScale,
		Current:  make([]float64, len(t.Current)),
	}
	floats.ScaleTo(s.Current, currentScale, t.Current)
	if t.Time != nil {
		s.Time = make([]float64, len(t.Time))
		floats.ScaleTo(s.Time, timeScale, t.Time)
	}
	return s
}
