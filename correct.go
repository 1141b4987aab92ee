// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package vclamp

import "math"

// CapacitiveCutoff is the cutoff frequency (Hz) of the single-pole filter
// applied to the capacitive current estimate.
const CapacitiveCutoff = 20000.0

// clampState is the only state carried from one sample to the next.
type clampState struct {
	lastVoltage float64 // Clamped voltage estimate of the previous sample
}

// correction is the outcome of one fold step for the sample being finalized.
type correction struct {
	resistive  float64 // Emitted value
	capacitive float64 // Raw current minus filtered capacitive current
	icap       float64 // Filtered capacitive current
}

// clampVoltage estimates the voltage actually reaching the membrane.
func (p Parameters) clampVoltage(current float64) float64 {
	return p.Holding - current*p.SeriesResistance
}

// resistiveFactor returns the resistive correction factor for a clamped
// voltage. It is zero when the clamped voltage equals the reversal potential.
func (p Parameters) resistiveFactor(volt float64) float64 {
	if volt == p.Reversal {
		return 0
	}
	return 1 - (p.Holding-p.Reversal)/(volt-p.Reversal)
}

// filterGain is the attenuation of the capacitive current filter.
func (p Parameters) filterGain() float64 {
	return 1 - math.Exp(-2*math.Pi*p.Interval*CapacitiveCutoff)
}

// start initializes the fold from the first sample and returns its
// provisional corrected value.
func (p Parameters) start(first float64) (clampState, float64) {
	volt := p.clampVoltage(first)
	return clampState{lastVoltage: volt}, first - first*p.resistiveFactor(volt)
}

// step consumes sample i and finalizes sample i-1.
func (p Parameters) step(s clampState, prev, current, gain float64) (clampState, correction) {
	volt := p.clampVoltage(current)
	factor := p.resistiveFactor(volt)

	icap := p.Capacitance * (volt - s.lastVoltage) / p.Interval
	icap *= gain

	return clampState{lastVoltage: volt}, correction{
		resistive:  prev * factor,
		capacitive: prev - icap,
		icap:       icap,
	}
}

// Correct applies the series-resistance and capacitance correction to a
// trace that is already expressed in the same unit system as p.
//
// Sample i-1 is finalized when sample i is consumed, so the last sample of a
// trace longer than one sample is left at zero. The first sample is only
// corrected through the no-previous-point path when the trace has a single
// sample.
func Correct(t Trace, p Parameters) (CorrectedTrace, error) {
	if err := p.Validate(); err != nil {
		return CorrectedTrace{}, err
	}

	n := len(t.Current)
	out := CorrectedTrace{
		Interval:   t.Interval,
		Time:       append([]float64(nil), t.Time...),
		Current:    make([]float64, n),
		Capacitive: make([]float64, n),
		Icap:       make([]float64, n),
	}
	if n == 0 {
		return out, nil
	}

	state, first := p.start(t.Current[0])
	out.Current[0] = first

	gain := p.filterGain()
	for i := 1; i < n; i++ {
		var c correction
		state, c = p.step(state, t.Current[i-1], t.Current[i], gain)

		out.Capacitive[i-1] = c.capacitive
		out.Icap[i-1] = c.icap
		out.Current[i-1] = c.resistive
	}

	return out, nil
}
