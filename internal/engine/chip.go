package engine

import (
	"math"

	"github.com/cbegin/synthhost-go/internal/control"
	"github.com/cbegin/synthhost-go/internal/lfo"
)

// ChipWave selects the oscillator of the chip engine.
type ChipWave int

const (
	ChipPulse ChipWave = iota
	ChipTriangle
	ChipNoise
)

// ChipParams configures the chip-style engine: one oscillator per slot with
// a quantized amplitude envelope, in the manner of old console sound chips.
type ChipParams struct {
	Wave        ChipWave
	PulseDuty   float64
	StepLevels  int // envelope quantization steps
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	MasterGain  float64
	VelocityAmp float64
	LPFCutoff   float64

	VibratoRateHz float64
	VibratoSemi   float64
}

func DefaultChipParams() ChipParams {
	return ChipParams{
		Wave:        ChipPulse,
		PulseDuty:   0.25,
		StepLevels:  16,
		AttackSec:   0.005,
		DecaySec:    0.15,
		SustainLvl:  0.65,
		ReleaseSec:  0.2,
		MasterGain:  0.28,
		VelocityAmp: 0.85,
		LPFCutoff:   12000,

		VibratoRateHz: 5.5,
	}
}

type chipVoice struct {
	active   bool
	freq     float64
	phase    float64 // [0, 1)
	velocity float64
	lfsr     uint16
	env      fmOperator
}

// Chip is an alternative engine with the same slot contract as FM. All
// state is pre-allocated; every method runs on the audio thread.
type Chip struct {
	sampleRate float64
	params     ChipParams
	voices     []chipVoice

	gain       float64
	gainInc    float64
	gainFrames int

	lpfAlpha float64
	lpfL     float64
	lpfR     float64

	dcPrevIn  float64
	dcPrevOut float64

	vibrato lfo.LFO

	bindings map[control.ParamID]Target
}

func NewChip(sampleRate, slots int, p ChipParams) *Chip {
	if slots < 1 {
		slots = 1
	}
	if p.StepLevels <= 1 {
		p.StepLevels = 16
	}
	e := &Chip{
		sampleRate: float64(sampleRate),
		params:     p,
		voices:     make([]chipVoice, slots),
		gain:       p.MasterGain,
		bindings:   make(map[control.ParamID]Target),
	}
	for i := range e.voices {
		e.voices[i].lfsr = uint16(0xACE1 + i*97)
	}
	e.setCutoff(p.LPFCutoff)
	e.vibrato.Configure(lfo.ShapeTriangle, p.VibratoRateHz, p.VibratoSemi)
	return e
}

// BindParam routes a registered ParamID to one of the engine's controls.
// Call before the stream starts.
func (e *Chip) BindParam(id control.ParamID, target Target) {
	e.bindings[id] = target
}

func (e *Chip) Trigger(slot, pitch, velocity int) {
	if slot < 0 || slot >= len(e.voices) {
		return
	}
	v := &e.voices[slot]
	env := v.env.env
	if !v.active {
		env = 0
	}
	lfsr := v.lfsr
	if lfsr == 0 {
		lfsr = 0xACE1
	}
	*v = chipVoice{
		active:   true,
		freq:     midiToFreq(pitch),
		velocity: clamp(float64(velocity)/127.0, 0, 1),
		lfsr:     lfsr,
		env: fmOperator{
			env:   env,
			state: envAttack,
			ar:    e.params.AttackSec,
			dr:    e.params.DecaySec,
			sl:    e.params.SustainLvl,
			rr:    e.params.ReleaseSec,
		},
	}
}

func (e *Chip) Release(slot int) {
	if slot < 0 || slot >= len(e.voices) {
		return
	}
	v := &e.voices[slot]
	if v.active {
		v.env.state = envRelease
	}
}

func (e *Chip) VoiceActive(slot int) bool {
	if slot < 0 || slot >= len(e.voices) {
		return false
	}
	return e.voices[slot].active
}

func (e *Chip) SetParam(id control.ParamID, value float64) {
	target, ok := e.bindings[id]
	if !ok {
		return
	}
	switch target {
	case TargetMasterGain:
		e.gain = value
		e.gainInc = 0
		e.gainFrames = 0
	case TargetCutoff:
		e.setCutoff(value)
	case TargetAttack:
		e.params.AttackSec = value
	case TargetRelease:
		e.params.ReleaseSec = value
	case TargetVibratoRate:
		e.vibrato.SetRate(value)
	case TargetVibratoDepth:
		e.vibrato.SetDepth(value)
	}
}

func (e *Chip) SetParamRamp(id control.ParamID, value, perFrameInc float64, rampFrames int) {
	target, ok := e.bindings[id]
	if !ok {
		return
	}
	if target == TargetMasterGain {
		e.gain = value
		e.gainInc = perFrameInc
		e.gainFrames = rampFrames
		return
	}
	e.SetParam(id, value)
}

func (e *Chip) Render(dst []float32, frames int) error {
	for f := 0; f < frames; f++ {
		pitchMul := 1.0
		if e.vibrato.Active() {
			pitchMul = math.Exp2(e.vibrato.Next(e.sampleRate) / 12)
		}
		var sum float64
		for i := range e.voices {
			v := &e.voices[i]
			if !v.active {
				continue
			}
			advanceEnv(&v.env, e.sampleRate)
			if v.env.state == envOff {
				v.active = false
				continue
			}
			sample := e.oscillate(v, v.freq*pitchMul)
			level := quantizeLevel(v.env.env*(0.15+v.velocity*e.params.VelocityAmp), e.params.StepLevels)
			sum += sample * level
		}
		sum *= e.gain
		if e.gainFrames > 0 {
			e.gain += e.gainInc
			e.gainFrames--
		}
		sum = e.dcBlock(sum)

		l, r := sum, sum
		if e.lpfAlpha > 0 {
			e.lpfL += e.lpfAlpha * (l - e.lpfL)
			e.lpfR += e.lpfAlpha * (r - e.lpfR)
			l, r = e.lpfL, e.lpfR
		}
		dst[f*2] = float32(clamp(l, -1, 1))
		dst[f*2+1] = float32(clamp(r, -1, 1))
	}
	e.gainInc = 0
	e.gainFrames = 0
	return nil
}

func (e *Chip) oscillate(v *chipVoice, freq float64) float64 {
	dt := freq / e.sampleRate
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch e.params.Wave {
	case ChipTriangle:
		return 2*math.Abs(2*v.phase-1) - 1
	case ChipNoise:
		// 16-bit LFSR clocked once per oscillator cycle.
		if v.phase < dt {
			bit := (v.lfsr ^ (v.lfsr >> 1)) & 1
			v.lfsr = (v.lfsr >> 1) | (bit << 15)
		}
		if v.lfsr&1 == 1 {
			return 1
		}
		return -1
	default:
		out := -1.0
		if v.phase < e.params.PulseDuty {
			out = 1
		}
		out += polyBLEP(v.phase, dt)
		out -= polyBLEP(math.Mod(v.phase-e.params.PulseDuty+1, 1), dt)
		return out
	}
}

func (e *Chip) setCutoff(hz float64) {
	if hz <= 0 || hz >= e.sampleRate/2 {
		e.lpfAlpha = 0
		return
	}
	rc := 1.0 / (twoPi * hz)
	dt := 1.0 / e.sampleRate
	e.lpfAlpha = dt / (rc + dt)
}

func (e *Chip) dcBlock(x float64) float64 {
	const r = 0.995
	y := x - e.dcPrevIn + r*e.dcPrevOut
	e.dcPrevIn = x
	e.dcPrevOut = y
	return y
}

// polyBLEP smooths the band-limited step at pulse edges. t is the phase in
// [0,1), dt the per-sample phase increment.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func quantizeLevel(level float64, steps int) float64 {
	return math.Round(level*float64(steps)) / float64(steps)
}
