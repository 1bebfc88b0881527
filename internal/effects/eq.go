package effects

import (
	"math"
	"sync/atomic"
)

// EQBands is the number of bands in the master EQ.
const EQBands = 5

// crossover frequencies splitting the 5 bands.
var eqCrossovers = [EQBands - 1]float64{200, 800, 2500, 8000}

// EQ is a 5-band equalizer whose band gains may be changed from any
// goroutine while the audio thread is processing: gains are float32 bit
// patterns behind atomics, read once per frame.
type EQ struct {
	gains  [EQBands]atomic.Uint32
	alphas [EQBands - 1]float32
	lpL    [EQBands - 1]float32
	lpR    [EQBands - 1]float32
}

// NewEQ creates the EQ with every band at unity gain.
func NewEQ(sampleRate int) *EQ {
	eq := &EQ{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range eqCrossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1.0))
	}
	return eq
}

// SetGain sets a band gain (1.0 = unity). Safe from any goroutine.
func (eq *EQ) SetGain(band int, gain float32) {
	if band >= 0 && band < EQBands {
		eq.gains[band].Store(math.Float32bits(gain))
	}
}

// Gain returns the current gain of a band.
func (eq *EQ) Gain(band int) float32 {
	if band >= 0 && band < EQBands {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1.0
}

func (eq *EQ) Process(l, r float32) (float32, float32) {
	// Cascaded one-pole crossovers peel bands off bottom-up; whatever
	// remains after the last crossover is the top band.
	var outL, outR float32
	remL, remR := l, r
	for i := 0; i < EQBands-1; i++ {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := math.Float32frombits(eq.gains[i].Load())
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := math.Float32frombits(eq.gains[EQBands-1].Load())
	return outL + remL*g, outR + remR*g
}

func (eq *EQ) Reset() {
	for i := range eq.lpL {
		eq.lpL[i] = 0
		eq.lpR[i] = 0
	}
}
