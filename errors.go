// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package vclamp

import "errors"

var (
	// ErrInvalidParameter is returned for non-positive sample intervals,
	// mismatched input lengths and out of range indices.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDegenerateRegression is returned when the current-voltage regression
	// cannot separate voltage levels and so has no finite zero crossing.
	ErrDegenerateRegression = errors.New("degenerate regression")
)
