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

// slopeTolerance bounds the current change across the voltage span, relative
// to the largest current, below which a fitted slope counts as zero.
const slopeTolerance = 1e-12

// ReversalFromIV fits current = a*voltage + b by ordinary least squares and
// returns the zero crossing -b/a in the units of voltages.
func ReversalFromIV(voltages, currents []float64) (float64, error) {
	if len(voltages) != len(currents) {
		return 0, fmt.Errorf("%w: %d voltages for %d currents", ErrInvalidParameter, len(voltages), len(currents))
	}
	if len(voltages) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 sweeps, got %d", ErrInvalidParameter, len(voltages))
	}

	span := floats.Max(voltages) - floats.Min(voltages)
	if !(span > 0) {
		return 0, fmt.Errorf("%w: all command voltages are equal", ErrDegenerateRegression)
	}

	intercept, slope := stat.LinearRegression(voltages, currents, nil, false)

	scale := math.Max(math.Abs(floats.Max(currents)), math.Abs(floats.Min(currents)))
	if slope == 0 || math.Abs(slope)*span <= slopeTolerance*scale {
		return 0, fmt.Errorf("%w: slope %g is zero", ErrDegenerateRegression, slope)
	}

	vrev := -intercept / slope
	if math.IsNaN(vrev) || math.IsInf(vrev, 0) {
		return 0, fmt.Errorf("%w: zero crossing is not finite", ErrDegenerateRegression)
	}

	return vrev, nil
}

// EstimateReversalPotential estimates the reversal potential from the
// steady-state current of every sweep. The steady-state current of a sweep is
// the mean of the window samples ending just before index.
func EstimateReversalPotential(sweeps SweepSet, window, index int) (float64, error) {
	voltages := make([]float64, len(sweeps))
	currents := make([]float64, len(sweeps))

	for i, sweep := range sweeps {
		ss, err := SteadyState(sweep.Trace.Current, window, index)
		if err != nil {
			return 0, fmt.Errorf("error reading steady state of sweep %d: %w", i, err)
		}
		voltages[i] = sweep.Voltage
		currents[i] = ss
	}

	return ReversalFromIV(voltages, currents)
}
