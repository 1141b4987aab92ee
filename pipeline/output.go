// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package pipeline

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/OpenPSG/vclamp/edf"
	"gonum.org/v1/gonum/floats"
)

// Unit is the physical unit traces are written in.
type Unit struct {
	Name  string  // Physical dimension, e.g. pA
	Scale float64 // Multiplier from amperes
}

// Picoampere is the unit of the reference recordings.
var Picoampere = Unit{Name: "pA", Scale: 1e12}

func (p *Pipeline) write(res Result) error {
	out := p.cfg.Output
	if !out.Summary && !out.EDF {
		return nil
	}
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	if out.Summary && res.Summary != nil {
		if err := WriteSummary(out.Dir, res.Name, *res.Summary); err != nil {
			return err
		}
		p.log.Infow("Wrote summary", "dir", out.Dir, "name", res.Name)
	}

	if out.EDF {
		filename := filepath.Join(out.Dir, "corrected_"+res.Name+".edf")
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("error creating recording: %w", err)
		}
		if err := WriteEDF(f, res, Picoampere, out.RecordSamples); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("error closing recording: %w", err)
		}
		p.log.Infow("Wrote corrected recording", "file", filename)
	}

	return nil
}

// WriteSummary writes the raw and corrected peak currents to
// currents_<name>_notcorrected and currents_<name>_corrected in dir.
func WriteSummary(dir, name string, s Summary) error {
	files := []struct {
		suffix string
		value  float64
	}{
		{"notcorrected", s.RawPeak},
		{"corrected", s.CorrectedPeak},
	}
	for _, f := range files {
		filename := filepath.Join(dir, "currents_"+name+"_"+f.suffix)
		if err := os.WriteFile(filename, []byte(strconv.FormatFloat(f.value, 'g', -1, 64)), 0o644); err != nil {
			return fmt.Errorf("error writing summary: %w", err)
		}
	}
	return nil
}

// WriteEDF writes the raw and corrected currents of a result as the signals
// Iraw and Icorr. The traces are split into data records of recordSamples
// samples and the last record is zero padded; the recording ID carries the
// true sample count.
func WriteEDF(w io.WriteSeeker, res Result, unit Unit, recordSamples int) error {
	n := res.Corrected.Len()
	if n == 0 || res.Raw.Len() != n {
		return fmt.Errorf("cannot write %d raw and %d corrected samples", res.Raw.Len(), n)
	}
	if recordSamples < 1 {
		return fmt.Errorf("record samples must be positive, got %d", recordSamples)
	}
	recordSamples = min(recordSamples, n)

	raw := res.Raw.Scaled(1, unit.Scale).Current
	corrected := res.Corrected.Trace().Scaled(1, unit.Scale).Current

	lo := math.Floor(math.Min(floats.Min(raw), floats.Min(corrected)))
	hi := math.Ceil(math.Max(floats.Max(raw), floats.Max(corrected)))
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	signal := func(label string) edf.Signal {
		return edf.Signal{
			Label:             label,
			PhysicalDimension: unit.Name,
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        math.MinInt16,
			DigitalMax:        math.MaxInt16,
			SamplesPerRecord:  recordSamples,
		}
	}

	ew, err := edf.Create(w, edf.Header{
		Version:            edf.Version0,
		PatientID:          res.Name,
		RecordingID:        fmt.Sprintf("%s samples=%d v_rev=%g", res.Profile, n, res.Params.Reversal),
		StartTime:          time.Now().UTC(),
		DataRecordDuration: time.Duration(math.Round(float64(recordSamples) * res.Params.Interval * float64(time.Second))),
		Signals:            []edf.Signal{signal("Iraw"), signal("Icorr")},
	})
	if err != nil {
		return fmt.Errorf("error creating recording: %w", err)
	}

	for off := 0; off < n; off += recordSamples {
		end := min(off+recordSamples, n)
		rawRecord := make([]float64, recordSamples)
		copy(rawRecord, raw[off:end])
		correctedRecord := make([]float64, recordSamples)
		copy(correctedRecord, corrected[off:end])

		if err := ew.WriteRecord([][]float64{rawRecord, correctedRecord}); err != nil {
			return fmt.Errorf("error writing recording: %w", err)
		}
	}

	return ew.Close()
}
