// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package edf reads and writes electrophysiology recordings stored as
// EDF files. Each data record of a recording holds one sweep.
package edf

import (
	"errors"
	"math"
	"time"
)

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

// MaxRecordBytes is the data record size recommended by the EDF standard.
const MaxRecordBytes = 61440

// ErrSignalNotFound is returned when no signal carries the requested label.
var ErrSignalNotFound = errors.New("signal not found")

// Header represents the EDF file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the cell or preparation
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	DataRecordDuration time.Duration // Duration of a single data record (sweep)
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// RecordBytes returns the size in bytes of one data record.
func (h Header) RecordBytes() int {
	size := 0
	for _, sig := range h.Signals {
		size += sig.SamplesPerRecord * 2
	}
	return size
}

// SampleInterval returns the sample interval in seconds of the given signal.
func (h Header) SampleInterval(signalIndex int) float64 {
	samples := h.Signals[signalIndex].SamplesPerRecord
	if samples == 0 {
		return 0
	}
	return h.DataRecordDuration.Seconds() / float64(samples)
}

// Signal represents the characteristics of each signal in the EDF file.
type Signal struct {
	Label             string  // Label of the signal (e.g., Imon, Vcmd)
	TransducerType    string  // Type of transducer used (e.g., headstage)
	PhysicalDimension string  // Physical dimension (e.g., pA, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information (e.g., LP:10kHz)
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// Physical converts a stored digital value to its physical value.
func (s Signal) Physical(digital int16) float64 {
	if s.DigitalMax == s.DigitalMin {
		return 0
	}
	return s.PhysicalMin + (float64(digital)-float64(s.DigitalMin))*(s.PhysicalMax-s.PhysicalMin)/float64(s.DigitalMax-s.DigitalMin)
}

// Digital converts a physical value to the nearest representable digital
// value, clamped to the digital range of the signal.
func (s Signal) Digital(physical float64) int16 {
	if s.PhysicalMax == s.PhysicalMin {
		return 0
	}
	digital := (physical-s.PhysicalMin)*float64(s.DigitalMax-s.DigitalMin)/(s.PhysicalMax-s.PhysicalMin) + float64(s.DigitalMin)
	digital = math.Round(digital)

	lo, hi := float64(s.DigitalMin), float64(s.DigitalMax)
	if lo > hi {
		lo, hi = hi, lo
	}
	digital = math.Max(lo, math.Min(hi, digital))
	if math.IsNaN(digital) {
		return 0
	}
	return int16(digital)
}
