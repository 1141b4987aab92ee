// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package vclamp removes series-resistance voltage error and cell-capacitance
// transient current from whole-cell voltage-clamp recordings.
//
// The correction is the point-wise procedure of Traynelis SF (1998),
// Software-based correction of single compartment series resistance errors,
// J Neurosci Methods 86:25-34.
package vclamp

import "fmt"

// Trace is an ordered, gap-free sequence of current samples for one sweep.
type Trace struct {
	Interval float64   // Sample interval
	Time     []float64 // Explicit sample times, nil when time is index*Interval
	Current  []float64 // Recorded current
}

// Len returns the number of samples in the trace.
func (t Trace) Len() int {
	return len(t.Current)
}

// TimeAt returns the time of sample i.
func (t Trace) TimeAt(i int) float64 {
	if t.Time != nil {
		return t.Time[i]
	}
	return float64(i) * t.Interval
}

// Sweep is one recorded trial at a known command voltage.
type Sweep struct {
	Voltage float64   // Command voltage of the step
	Command []float64 // Command voltage protocol, if recorded
	Trace   Trace
}

// SweepSet is a read-only collection of sweeps.
type SweepSet []Sweep

// Parameters holds the physiological parameters of one correction.
// All values must be expressed in one compatible unit system (for example
// volts, amperes, ohms, farads and seconds).
type Parameters struct {
	Holding          float64 // Holding potential (v_hold)
	Reversal         float64 // Reversal potential (v_rev)
	SeriesResistance float64 // Series resistance (Rs), >= 0
	Capacitance      float64 // Membrane capacitance (Cm), >= 0
	Interval         float64 // Sample interval (adinterval), > 0
}

// Validate reports whether the parameters can drive a correction.
func (p Parameters) Validate() error {
	if !(p.Interval > 0) {
		return fmt.Errorf("%w: sample interval must be positive, got %g", ErrInvalidParameter, p.Interval)
	}
	return nil
}

// CorrectedTrace is the result of a correction. It shares the time base of
// the source trace and is not modified after it is returned.
type CorrectedTrace struct {
	Interval float64
	Time     []float64
	Current  []float64 // Corrected current, one value per source sample

	// Capacitive holds raw[i-1] minus the filtered capacitive current of the
	// transition into sample i. The published procedure computes this value
	// and then replaces it with the resistive correction, so it never reaches
	// Current.
	Capacitive []float64
	// Icap holds the filtered capacitive current of each finalized sample.
	Icap []float64
}

// Len returns the number of samples in the corrected trace.
func (c CorrectedTrace) Len() int {
	return len(c.Current)
}

// Trace returns the corrected current as a Trace on the source time base.
func (c CorrectedTrace) Trace() Trace {
	return Trace{Interval: c.Interval, Time: c.Time, Current: c.Current}
}
