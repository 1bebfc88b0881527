// Package engine defines the synthesis-engine contract the render loop
// drives, plus two implementations: the default two-operator FM engine and
// a chip-style pulse/triangle/noise engine. The host never inspects an
// engine beyond this contract, so a fake engine drops in for tests.
package engine

import "github.com/cbegin/synthhost-go/internal/control"

// Target names the engine controls a ParamID can bind to.
type Target uint8

const (
	TargetMasterGain Target = iota
	TargetCutoff
	TargetModIndex
	TargetAttack
	TargetRelease
	TargetVibratoRate
	TargetVibratoDepth
)

// Engine is the narrow capability interface for a synthesis engine. All
// methods are called from the audio thread only; implementations must not
// block, allocate, or take locks in any of them.
type Engine interface {
	// Trigger starts (or retriggers) the voice in slot with a new note.
	// Retriggering an already-sounding slot must avoid a hard
	// discontinuity; how is the engine's business.
	Trigger(slot, pitch, velocity int)

	// Release moves the voice in slot into its release phase.
	Release(slot int)

	// SetParam applies a parameter value. Unknown ids are ignored.
	SetParam(id control.ParamID, value float64)

	// Render writes exactly frames interleaved stereo frames into
	// dst[:frames*2]. A non-nil error signals an internal fault; the
	// caller substitutes silence and retries next block.
	Render(dst []float32, frames int) error

	// VoiceActive reports whether the slot is still sounding, release
	// tail included.
	VoiceActive(slot int) bool
}

// RampEngine is optionally implemented by engines that can apply a
// parameter with a per-frame increment across the coming render block,
// for parameters flagged sample-accurate. The increment covers exactly
// rampFrames frames; past that the value holds, since a ramp may end in
// the middle of the block.
type RampEngine interface {
	SetParamRamp(id control.ParamID, value, perFrameInc float64, rampFrames int)
}
