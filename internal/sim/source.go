// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim generates synthetic accelerometer data for the device
// simulator.
package sim

import "math"

// Sample is one three-axis reading in g.
type Sample struct {
	X, Y, Z float64
}

// Magnitude is the vector norm of the reading.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Source produces a smooth, repeatable signal: a slow tilt on X and Y on
// top of 1 g of gravity on Z, with a small vibration riding on every axis.
// Values are clipped to the configured full scale like a real sensor.
type Source struct {
	rate float64
	n    uint64
}

// NewSource creates a source sampling at rate samples per second.
func NewSource(rate int) *Source {
	if rate < 1 {
		rate = 1
	}
	return &Source{rate: float64(rate)}
}

// Next returns the next reading clipped to ±fullScale.
func (s *Source) Next(fullScale float64) Sample {
	t := float64(s.n) / s.rate
	s.n++

	vib := 0.05 * math.Sin(2*math.Pi*120*t)
	return Sample{
		X: clip(0.5*math.Sin(2*math.Pi*0.5*t)+vib, fullScale),
		Y: clip(0.3*math.Cos(2*math.Pi*0.3*t)+vib, fullScale),
		Z: clip(1+vib, fullScale),
	}
}

// Chunk returns the next n readings split by axis.
func (s *Source) Chunk(n int, fullScale float64) (x, y, z []float64) {
	x = make([]float64, n)
	y = make([]float64, n)
	z = make([]float64, n)
	for i := 0; i < n; i++ {
		smp := s.Next(fullScale)
		x[i], y[i], z[i] = smp.X, smp.Y, smp.Z
	}
	return x, y, z
}

// Elapsed is the signal time in seconds.
func (s *Source) Elapsed() float64 { return float64(s.n) / s.rate }

func clip(v, fullScale float64) float64 {
	if fullScale <= 0 {
		return v
	}
	return math.Max(-fullScale, math.Min(fullScale, v))
}
