// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF recordings.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// fields walks the fixed-width ASCII fields of a header block.
type fields struct {
	b   []byte
	off int
}

func (f *fields) next(width int) string {
	s := strings.TrimSpace(string(f.b[f.off : f.off+width]))
	f.off += width
	return s
}

// Open parses the header of an EDF recording.
func Open(r io.ReadSeeker) (*Reader, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to header: %w", err)
	}
	br := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr, err := parseHeader(&fields{b: b})
	if err != nil {
		return nil, err
	}

	b = make([]byte, hdr.SignalCount*256)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading signal headers: %w", err)
	}
	if err := parseSignals(&fields{b: b}, hdr); err != nil {
		return nil, err
	}

	if hdr.DataRecords == -1 {
		if hdr.DataRecords, err = countRecords(r, hdr); err != nil {
			return nil, err
		}
	}

	return &Reader{r: r, hdr: hdr}, nil
}

// countRecords derives the record count of a recording that was never
// finalized from its size. A trailing partial record is ignored.
func countRecords(r io.Seeker, hdr *Header) (int, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("error seeking to end of recording: %w", err)
	}

	recordBytes := int64(hdr.RecordBytes())
	if recordBytes == 0 || size <= int64(hdr.HeaderBytes) {
		return 0, nil
	}
	return int((size - int64(hdr.HeaderBytes)) / recordBytes), nil
}

func parseHeader(f *fields) (*Header, error) {
	hdr := &Header{
		Version:     Version(f.next(8)),
		PatientID:   f.next(80),
		RecordingID: f.next(80),
	}

	startDate, err := time.Parse("02.01.06", f.next(8))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", f.next(8))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = strconv.Atoi(f.next(8)); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	f.next(44) // reserved

	if hdr.DataRecords, err = strconv.Atoi(f.next(8)); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}
	// -1 marks a recording whose record count was never written.
	if hdr.DataRecords < -1 {
		return nil, fmt.Errorf("error parsing number of data records: %d", hdr.DataRecords)
	}

	seconds, err := strconv.ParseFloat(f.next(8), 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	hdr.DataRecordDuration = time.Duration(math.Round(seconds * float64(time.Second)))

	if hdr.SignalCount, err = strconv.Atoi(f.next(4)); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("error parsing signal count: %d", hdr.SignalCount)
	}
	if hdr.HeaderBytes != 256*(1+hdr.SignalCount) {
		return nil, fmt.Errorf("header bytes %d do not match %d signals", hdr.HeaderBytes, hdr.SignalCount)
	}

	return hdr, nil
}

// parseSignals decodes the per-signal header block. Each field is stored for
// all signals before the next field starts.
func parseSignals(f *fields, hdr *Header) error {
	hdr.Signals = make([]Signal, hdr.SignalCount)
	n := hdr.SignalCount

	each := func(width int, name string, set func(sig *Signal, v string) error) error {
		for i := 0; i < n; i++ {
			if err := set(&hdr.Signals[i], f.next(width)); err != nil {
				return fmt.Errorf("error parsing %s of signal %d: %w", name, i, err)
			}
		}
		return nil
	}

	text := func(dst func(sig *Signal) *string) func(*Signal, string) error {
		return func(sig *Signal, v string) error {
			*dst(sig) = v
			return nil
		}
	}
	number := func(dst func(sig *Signal) *float64) func(*Signal, string) error {
		return func(sig *Signal, v string) (err error) {
			*dst(sig), err = strconv.ParseFloat(v, 64)
			return err
		}
	}
	integer := func(dst func(sig *Signal) *int) func(*Signal, string) error {
		return func(sig *Signal, v string) (err error) {
			*dst(sig), err = strconv.Atoi(v)
			return err
		}
	}

	steps := []struct {
		width int
		name  string
		set   func(*Signal, string) error
	}{
		{16, "label", text(func(s *Signal) *string { return &s.Label })},
		{80, "transducer type", text(func(s *Signal) *string { return &s.TransducerType })},
		{8, "physical dimension", text(func(s *Signal) *string { return &s.PhysicalDimension })},
		{8, "physical minimum", number(func(s *Signal) *float64 { return &s.PhysicalMin })},
		{8, "physical maximum", number(func(s *Signal) *float64 { return &s.PhysicalMax })},
		{8, "digital minimum", integer(func(s *Signal) *int { return &s.DigitalMin })},
		{8, "digital maximum", integer(func(s *Signal) *int { return &s.DigitalMax })},
		{80, "prefiltering", text(func(s *Signal) *string { return &s.Prefiltering })},
		{8, "samples per record", integer(func(s *Signal) *int { return &s.SamplesPerRecord })},
		{32, "reserved", text(func(s *Signal) *string { return &s.Reserved })},
	}
	for _, step := range steps {
		if err := each(step.width, step.name, step.set); err != nil {
			return err
		}
	}

	return nil
}

// Header returns a copy of the recording header.
func (er *Reader) Header() Header {
	hdr := *er.hdr
	hdr.Signals = append([]Signal(nil), er.hdr.Signals...)
	return hdr
}

// Records returns the number of data records (sweeps) in the recording.
func (er *Reader) Records() int {
	return er.hdr.DataRecords
}

// SignalIndex returns the index of the signal with the given label.
func (er *Reader) SignalIndex(label string) (int, error) {
	for i, sig := range er.hdr.Signals {
		if strings.EqualFold(sig.Label, label) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrSignalNotFound, label)
}

// ReadRecord returns the physical values of every signal in data record n.
func (er *Reader) ReadRecord(n int) ([][]float64, error) {
	if n < 0 || n >= er.hdr.DataRecords {
		return nil, fmt.Errorf("record index %d out of range", n)
	}

	size := er.hdr.RecordBytes()
	pos := int64(er.hdr.HeaderBytes) + int64(n)*int64(size)
	if _, err := er.r.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to record %d: %w", n, err)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(er.r, buf); err != nil {
		return nil, fmt.Errorf("error reading record %d: %w", n, err)
	}

	signals := make([][]float64, len(er.hdr.Signals))
	off := 0
	for i, sig := range er.hdr.Signals {
		signals[i] = make([]float64, sig.SamplesPerRecord)
		for j := range signals[i] {
			signals[i][j] = sig.Physical(int16(binary.LittleEndian.Uint16(buf[off:])))
			off += 2
		}
	}

	return signals, nil
}

// Sweeps calls fn with the physical values of every data record in order,
// stopping at the first error.
func (er *Reader) Sweeps(fn func(n int, signals [][]float64) error) error {
	for n := 0; n < er.hdr.DataRecords; n++ {
		signals, err := er.ReadRecord(n)
		if err != nil {
			return err
		}
		if err := fn(n, signals); err != nil {
			return err
		}
	}
	return nil
}

// SignalReader reads one signal continuously across data records.
type SignalReader struct {
	er            *Reader
	signalIndex   int       // Index of the signal to read
	currentRecord int       // Next record to load
	pending       []float64 // Unread samples of the last loaded record
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index out of range")
	}
	return &SignalReader{er: er, signalIndex: signalIndex}, nil
}

// Read fills the provided float64 slice with the physical values from the signal.
func (sr *SignalReader) Read(data []float64) (int, error) {
	n := 0
	for n < len(data) {
		if len(sr.pending) == 0 {
			if sr.currentRecord >= sr.er.hdr.DataRecords {
				return n, io.EOF
			}
			record, err := sr.er.ReadRecord(sr.currentRecord)
			if err != nil {
				return n, err
			}
			sr.pending = record[sr.signalIndex]
			sr.currentRecord++
			continue
		}

		copied := copy(data[n:], sr.pending)
		sr.pending = sr.pending[copied:]
		n += copied
	}

	return n, nil
}
