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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Writer writes EDF recordings.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)
	if hdr.Version == "" {
		hdr.Version = Version0
	}

	ew := &Writer{w: w, hdr: &hdr}
	if size := hdr.RecordBytes(); size > MaxRecordBytes {
		return nil, fmt.Errorf("data record too large: %d bytes, max is %d bytes", size, MaxRecordBytes)
	}

	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the recording by updating the header with the total number
// of data records and leaves the underlying writer positioned at its end.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if _, err := ew.w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("error seeking to end: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record (one sweep) to the recording.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}
	for i, sig := range ew.hdr.Signals {
		if len(signals[i]) != sig.SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, sig.SamplesPerRecord, len(signals[i]))
		}
	}

	pos := int64(ew.hdr.HeaderBytes) + int64(ew.dataRecords)*int64(ew.hdr.RecordBytes())
	if _, err := ew.w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to record %d: %w", ew.dataRecords, err)
	}

	buf := make([]byte, 0, ew.hdr.RecordBytes())
	for i, sig := range ew.hdr.Signals {
		for _, sample := range signals[i] {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(sig.Digital(sample)))
		}
	}
	if _, err := ew.w.Write(buf); err != nil {
		return fmt.Errorf("error writing record %d: %w", ew.dataRecords, err)
	}

	ew.dataRecords++
	return nil
}

// headerBuilder lays out fixed-width, space padded ASCII fields.
type headerBuilder struct {
	bytes.Buffer
}

func (b *headerBuilder) field(width int, s string) {
	if len(s) > width {
		s = s[:width]
	}
	b.WriteString(s)
	for i := len(s); i < width; i++ {
		b.WriteByte(' ')
	}
}

func (b *headerBuilder) number(v float64) {
	b.field(8, formatNumber(v, 8))
}

// writeHeader rewrites the header at the start of the recording.
func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	hdr := ew.hdr
	hdr.HeaderBytes = 256 + (hdr.SignalCount * 256)

	var b headerBuilder
	b.field(8, string(hdr.Version))
	b.field(80, hdr.PatientID)
	b.field(80, hdr.RecordingID)
	b.field(8, hdr.StartTime.Format("02.01.06"))
	b.field(8, hdr.StartTime.Format("15.04.05"))
	b.field(8, strconv.Itoa(hdr.HeaderBytes))
	b.field(44, "")
	b.field(8, strconv.Itoa(hdr.DataRecords))
	b.number(hdr.DataRecordDuration.Seconds())
	b.field(4, strconv.Itoa(hdr.SignalCount))

	for _, sig := range hdr.Signals {
		b.field(16, sig.Label)
	}
	for _, sig := range hdr.Signals {
		b.field(80, sig.TransducerType)
	}
	for _, sig := range hdr.Signals {
		b.field(8, sig.PhysicalDimension)
	}
	for _, sig := range hdr.Signals {
		b.number(sig.PhysicalMin)
	}
	for _, sig := range hdr.Signals {
		b.number(sig.PhysicalMax)
	}
	for _, sig := range hdr.Signals {
		b.field(8, strconv.Itoa(sig.DigitalMin))
	}
	for _, sig := range hdr.Signals {
		b.field(8, strconv.Itoa(sig.DigitalMax))
	}
	for _, sig := range hdr.Signals {
		b.field(80, sig.Prefiltering)
	}
	for _, sig := range hdr.Signals {
		b.field(8, strconv.Itoa(sig.SamplesPerRecord))
	}
	for _, sig := range hdr.Signals {
		b.field(32, sig.Reserved)
	}

	writer := bufio.NewWriter(ew.w)
	if _, err := b.WriteTo(writer); err != nil {
		return err
	}
	return writer.Flush()
}

// formatNumber renders v with as many decimals as fit in width characters.
func formatNumber(v float64, width int) string {
	for prec := 6; prec >= 0; prec-- {
		s := strconv.FormatFloat(v, 'f', prec, 64)
		if len(s) <= width {
			return s
		}
	}
	for prec := width; prec > 0; prec-- {
		s := strconv.FormatFloat(v, 'g', prec, 64)
		if len(s) <= width {
			return s
		}
	}
	return strconv.FormatFloat(v, 'g', 1, 64)
}
