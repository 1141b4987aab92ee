// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package synth generates synthetic current curves used to validate the
// voltage-clamp correction.
package synth

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Curve is a sequence of (x, y) points.
type Curve struct {
	X []float64
	Y []float64
}

// Len returns the number of points on the curve.
func (c Curve) Len() int {
	return len(c.X)
}

// Arange returns evenly spaced values in [start, stop).
func Arange(start, stop, step float64) []float64 {
	if step == 0 || (stop-start)/step <= 0 {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	x := make([]float64, n)
	for i := range x {
		x[i] = start + float64(i)*step
	}
	return x
}

func exponential(x []float64, tau, amplitude, offset float64) Curve {
	c := Curve{X: x, Y: make([]float64, len(x))}
	for i, v := range x {
		c.Y[i] = amplitude*math.Exp(-tau/v) + offset
	}
	return c
}

// ExponentialRise samples amplitude*exp(-tau/x)+offset on [0.1, 8) every 0.5.
func ExponentialRise(tau, amplitude, offset float64) Curve {
	return exponential(Arange(0.1, 8, 0.5), tau, amplitude, offset)
}

// ExponentialDecay samples amplitude*exp(-tau/x)+offset on [0.8, 8) every 0.025.
func ExponentialDecay(tau, amplitude, offset float64) Curve {
	return exponential(Arange(0.8, 8, 0.025), tau, amplitude, offset)
}

// Peak current (pA) of the simulated GluR6 response.
const gluR6Peak = 1650.0

// GluR6 returns the simulated unfiltered current of PKA-treated GluR6
// receptors (Traynelis 1998, Fig. 2, open symbols). Time is in milliseconds
// and current in picoamperes.
func GluR6() Curve {
	rise := ExponentialRise(1, 1, 0)
	floats.Scale(1.0/20, rise.X)
	factor := gluR6Peak / rise.Y[len(rise.Y)-1]
	floats.Scale(factor, rise.Y)

	decay := ExponentialDecay(2.2, -1.4, 1.4)
	floats.AddConst(-1.86, decay.X)
	begin := 0
	for i, y := range decay.Y {
		if y < 0.87 {
			begin = i
			break
		}
	}
	decay.X = decay.X[begin:]
	decay.Y = decay.Y[begin:]
	floats.Scale(factor, decay.Y)

	return Curve{
		X: append(append([]float64(nil), rise.X...), decay.X...),
		Y: append(append([]float64(nil), rise.Y...), decay.Y...),
	}
}
