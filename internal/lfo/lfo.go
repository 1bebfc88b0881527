// Package lfo provides a low-frequency oscillator shared across all voices
// of an engine. Output is a per-sample modulation value in [-depth, +depth];
// the unit is whatever the caller modulates (semitones, gain, Hz).
package lfo

import "math"

type Shape int

const (
	ShapeTriangle Shape = iota
	ShapeSaw
	ShapeSquare
	ShapeSampleHold
)

// LFO runs on the audio thread only; the zero value is inactive.
type LFO struct {
	shape  Shape
	rateHz float64
	depth  float64
	phase  float64 // [0, 1)
	hold   float64 // sample-and-hold value
}

func (l *LFO) Configure(shape Shape, rateHz, depth float64) {
	if shape < ShapeTriangle || shape > ShapeSampleHold {
		shape = ShapeTriangle
	}
	l.shape = shape
	l.rateHz = rateHz
	l.depth = depth
}

func (l *LFO) SetRate(rateHz float64) { l.rateHz = rateHz }
func (l *LFO) SetDepth(depth float64) { l.depth = depth }

// Active reports whether Next would produce non-zero modulation.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Next advances one sample and returns the modulation value.
func (l *LFO) Next(sampleRate float64) float64 {
	if !l.Active() || sampleRate == 0 {
		return 0
	}
	var wave float64
	switch l.shape {
	case ShapeSaw:
		wave = 1 - 2*l.phase
	case ShapeSquare:
		if l.phase < 0.5 {
			wave = 1
		} else {
			wave = -1
		}
	case ShapeSampleHold:
		wave = l.hold
	default:
		if l.phase < 0.5 {
			wave = 4*l.phase - 1
		} else {
			wave = 3 - 4*l.phase
		}
	}

	prev := l.phase
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1 {
		l.phase -= 1
	}
	if l.shape == ShapeSampleHold && l.phase < prev {
		// New held value each cycle. Deterministic hash so offline renders
		// of the same script are byte-identical.
		h := math.Sin(l.phase*12345.6789 + l.hold*67890.1234)
		h -= math.Floor(h)
		l.hold = h*2 - 1
	}
	return wave * l.depth
}

func (l *LFO) Reset() {
	l.phase = 0
	l.hold = 0
}
