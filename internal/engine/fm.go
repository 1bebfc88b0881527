package engine

import (
	"math"

	"github.com/cbegin/synthhost-go/internal/control"
	"github.com/cbegin/synthhost-go/internal/lfo"
)

const twoPi = math.Pi * 2

// FMParams configures the default two-operator FM engine.
type FMParams struct {
	CarrierMul  float64
	ModMul      float64
	ModIndex    float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	MasterGain  float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass cutoff in Hz (0 = disabled)

	VibratoRateHz float64
	VibratoSemi   float64 // vibrato depth in semitones (0 = disabled)
}

func DefaultFMParams() FMParams {
	return FMParams{
		CarrierMul:  1.0,
		ModMul:      2.0,
		ModIndex:    1.6,
		AttackSec:   0.005,
		DecaySec:    0.12,
		SustainLvl:  0.75,
		ReleaseSec:  0.2,
		MasterGain:  0.45,
		VelocityAmp: 0.8,
		LPFCutoff:   12000,

		VibratoRateHz: 5.5,
		VibratoSemi:   0,
	}
}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type fmOperator struct {
	phase float64
	env   float64
	state envState
	mul   float64
	ar    float64
	dr    float64
	sl    float64
	rr    float64
}

type fmVoice struct {
	active   bool
	freq     float64
	velocity float64
	carrier  fmOperator
	mod      fmOperator
}

// FM is the default engine: one two-operator FM voice per slot, slot
// indices assigned by the voice allocator. All state is pre-allocated at
// construction and every method runs on the audio thread, so no field
// needs synchronization.
type FM struct {
	sampleRate float64
	params     FMParams
	voices     []fmVoice

	gain       float64
	gainInc    float64 // consumed over the current render block, then cleared
	gainFrames int     // frames of the block the increment covers

	cutoff   float64
	lpfAlpha float64
	lpfL     float64
	lpfR     float64

	// Global vibrato shared by all voices.
	vibrato lfo.LFO

	bindings map[control.ParamID]Target
}

func NewFM(sampleRate, slots int, p FMParams) *FM {
	if slots < 1 {
		slots = 1
	}
	e := &FM{
		sampleRate: float64(sampleRate),
		params:     p,
		voices:     make([]fmVoice, slots),
		gain:       p.MasterGain,
		bindings:   make(map[control.ParamID]Target),
	}
	e.setCutoff(p.LPFCutoff)
	e.vibrato.Configure(lfo.ShapeTriangle, p.VibratoRateHz, p.VibratoSemi)
	return e
}

// BindParam routes a registered ParamID to one of the engine's controls.
// Call before the stream starts.
func (e *FM) BindParam(id control.ParamID, target Target) {
	e.bindings[id] = target
}

// Trigger restarts the slot's voice with a new note. The envelopes resume
// their attack from the current level rather than from zero, so stealing a
// sounding voice never steps the output discontinuously.
func (e *FM) Trigger(slot, pitch, velocity int) {
	if slot < 0 || slot >= len(e.voices) {
		return
	}
	v := &e.voices[slot]
	carrierEnv := v.carrier.env
	modEnv := v.mod.env
	if !v.active {
		carrierEnv, modEnv = 0, 0
	}
	*v = fmVoice{
		active:   true,
		freq:     midiToFreq(pitch),
		velocity: clamp(float64(velocity)/127.0, 0, 1),
		carrier: fmOperator{
			env:   carrierEnv,
			state: envAttack,
			mul:   e.params.CarrierMul,
			ar:    e.params.AttackSec,
			dr:    e.params.DecaySec,
			sl:    e.params.SustainLvl,
			rr:    e.params.ReleaseSec,
		},
		mod: fmOperator{
			env:   modEnv,
			state: envAttack,
			mul:   e.params.ModMul,
			ar:    e.params.AttackSec,
			dr:    e.params.DecaySec,
			sl:    e.params.SustainLvl,
			rr:    e.params.ReleaseSec,
		},
	}
}

func (e *FM) Release(slot int) {
	if slot < 0 || slot >= len(e.voices) {
		return
	}
	v := &e.voices[slot]
	if !v.active {
		return
	}
	v.carrier.state = envRelease
	v.mod.state = envRelease
}

func (e *FM) VoiceActive(slot int) bool {
	if slot < 0 || slot >= len(e.voices) {
		return false
	}
	return e.voices[slot].active
}

func (e *FM) SetParam(id control.ParamID, value float64) {
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
	case TargetModIndex:
		e.params.ModIndex = value
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

// SetParamRamp applies a sample-accurate ramp segment for the coming
// block: perFrameInc for rampFrames frames, then hold. Only master gain is
// smoothed per frame; other targets take the segment's start value.
func (e *FM) SetParamRamp(id control.ParamID, value, perFrameInc float64, rampFrames int) {
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

func (e *FM) Render(dst []float32, frames int) error {
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
			advanceEnv(&v.carrier, e.sampleRate)
			advanceEnv(&v.mod, e.sampleRate)
			if v.carrier.state == envOff && v.mod.state == envOff {
				v.active = false
				continue
			}
			mod := math.Sin(v.mod.phase) * v.mod.env * e.params.ModIndex
			sig := math.Sin(v.carrier.phase+mod) * v.carrier.env
			sig *= 0.2 + v.velocity*e.params.VelocityAmp
			sum += sig

			v.carrier.phase += twoPi * v.freq * pitchMul * v.carrier.mul / e.sampleRate
			if v.carrier.phase > twoPi {
				v.carrier.phase -= twoPi
			}
			v.mod.phase += twoPi * v.freq * pitchMul * v.mod.mul / e.sampleRate
			if v.mod.phase > twoPi {
				v.mod.phase -= twoPi
			}
		}
		sum *= e.gain
		if e.gainFrames > 0 {
			e.gain += e.gainInc
			e.gainFrames--
		}

		l, r := sum, sum
		if e.lpfAlpha > 0 {
			e.lpfL += e.lpfAlpha * (l - e.lpfL)
			e.lpfR += e.lpfAlpha * (r - e.lpfR)
			l, r = e.lpfL, e.lpfR
		}
		dst[f*2] = float32(clamp(l, -1, 1))
		dst[f*2+1] = float32(clamp(r, -1, 1))
	}
	// The ramp segment never outlives its block.
	e.gainInc = 0
	e.gainFrames = 0
	return nil
}

func (e *FM) setCutoff(hz float64) {
	e.cutoff = hz
	if hz <= 0 || hz >= e.sampleRate/2 {
		e.lpfAlpha = 0
		return
	}
	rc := 1.0 / (twoPi * hz)
	dt := 1.0 / e.sampleRate
	e.lpfAlpha = dt / (rc + dt)
}

func advanceEnv(op *fmOperator, sampleRate float64) {
	switch op.state {
	case envAttack:
		step := 1.0 / (op.ar * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env += step
		if op.env >= 1 {
			op.env = 1
			op.state = envDecay
		}
	case envDecay:
		step := (1 - op.sl) / (op.dr * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env -= step
		if op.env <= op.sl {
			op.env = op.sl
			op.state = envSustain
		}
	case envSustain:
	case envRelease:
		step := op.sl / (op.rr * sampleRate)
		if step <= 0 {
			step = 1
		}
		op.env -= step
		if op.env <= 0.0001 {
			op.env = 0
			op.state = envOff
		}
	case envOff:
		op.env = 0
	}
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
