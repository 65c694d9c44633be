// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode selects how the vertical range of a chart is obtained.
type Mode int

const (
	// Auto recomputes the range from the buffered samples on every draw.
	Auto Mode = iota
	// Manual pins the range to ±scale.
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "auto"
}

// DisplayRange is the vertical interval mapped onto the plot height.
// Min is always strictly below Max.
type DisplayRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Span returns Max - Min.
func (r DisplayRange) Span() float64 { return r.Max - r.Min }

// fallbackRange is used when no finite sample is buffered.
var fallbackRange = DisplayRange{Min: -1, Max: 1}

// EstimateRange computes the display range for channels.
//
// Manual returns (-scale, +scale). Auto takes min and max over the finite
// samples of every channel and pads them by 10% of the span; a constant
// signal is padded by max(|v|*0.1, 0.1) and no finite sample at all yields
// (-1, 1).
func EstimateRange(channels [][]float64, mode Mode, scale float64) DisplayRange {
	if mode == Manual {
		return DisplayRange{Min: -scale, Max: scale}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, ch := range channels {
		for _, v := range ch {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	if math.IsInf(lo, 1) {
		return fallbackRange
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 0.1)
		// Near the float64 limits one end stays at the value itself.
		return DisplayRange{
			Min: math.Max(lo-pad, -math.MaxFloat64),
			Max: math.Min(lo+pad, math.MaxFloat64),
		}
	}

	pad := (hi - lo) * 0.1
	r := DisplayRange{Min: lo - pad, Max: hi + pad}
	// Extreme spans can overflow the padding.
	if math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return DisplayRange{Min: lo, Max: hi}
	}
	return r
}

// InvalidScaleError reports a manual scale that cannot produce a valid range.
type InvalidScaleError struct {
	Input string
}

func (e *InvalidScaleError) Error() string {
	return fmt.Sprintf("invalid scale %q: must be a finite number above zero", e.Input)
}

// ParseScale parses a manual full-scale value such as "16" or "2.5".
func ParseScale(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &InvalidScaleError{Input: s}
	}
	if err := ValidateScale(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateScale rejects non-finite and non-positive scales.
func ValidateScale(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &InvalidScaleError{Input: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return nil
}
