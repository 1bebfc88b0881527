// Package params holds per-parameter ramp state between control-rate Set
// calls and the per-block Advance the render loop performs. Ramp state has
// a single writer: only the audio thread calls Set and Advance; control
// threads request targets through the event queue.
package params

import (
	"fmt"
	"time"

	"github.com/cbegin/synthhost-go/internal/control"
)

// Spec declares one parameter at construction time.
type Spec struct {
	ID      control.ParamID
	Name    string
	Initial float64
	Min     float64
	Max     float64

	// SampleAccurate parameters hand the engine a per-sample increment
	// each block instead of a single block value.
	SampleAccurate bool
}

type state struct {
	spec       Spec
	value      float64
	target     float64
	inc        float64 // per frame
	framesLeft int
}

// Router owns all parameter ramp state.
type Router struct {
	sampleRate int
	states     []state
	index      map[control.ParamID]int
}

func NewRouter(sampleRate int, specs ...Spec) (*Router, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("params: sample rate must be positive, got %d", sampleRate)
	}
	r := &Router{
		sampleRate: sampleRate,
		states:     make([]state, 0, len(specs)),
		index:      make(map[control.ParamID]int, len(specs)),
	}
	for _, sp := range specs {
		if _, dup := r.index[sp.ID]; dup {
			return nil, fmt.Errorf("params: duplicate parameter id %d (%q)", sp.ID, sp.Name)
		}
		if sp.Name == "" {
			return nil, fmt.Errorf("params: parameter id %d has no name", sp.ID)
		}
		if sp.Min > sp.Max {
			return nil, fmt.Errorf("params: %q has min %g > max %g", sp.Name, sp.Min, sp.Max)
		}
		if sp.Initial < sp.Min || sp.Initial > sp.Max {
			return nil, fmt.Errorf("params: %q initial %g outside [%g, %g]", sp.Name, sp.Initial, sp.Min, sp.Max)
		}
		r.index[sp.ID] = len(r.states)
		r.states = append(r.states, state{
			spec:   sp,
			value:  sp.Initial,
			target: sp.Initial,
		})
	}
	return r, nil
}

// Set retargets a parameter, ramping linearly from the current interpolated
// value over ramp. A ramp of zero snaps on the next Advance over one block.
// Unknown ids are ignored: producers may legitimately race a re-registration
// of the control surface. Returns whether the id was known.
func (r *Router) Set(id control.ParamID, target float64, ramp time.Duration) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	s := &r.states[i]
	if target < s.spec.Min {
		target = s.spec.Min
	}
	if target > s.spec.Max {
		target = s.spec.Max
	}
	frames := int(ramp.Seconds() * float64(r.sampleRate))
	if frames < 1 {
		frames = 1
	}
	s.target = target
	s.framesLeft = frames
	s.inc = (target - s.value) / float64(frames)
	return true
}

// Advance moves every ramping parameter forward by blockFrames and reports
// each one through apply. Block-rate parameters report their post-block
// value with a zero increment; sample-accurate parameters report the
// pre-block value, the per-frame increment, and rampFrames, the number of
// frames of this block the ramp covers. A ramp ending mid-block covers
// fewer frames than the block; consumers must stop incrementing there or
// they overshoot the target.
func (r *Router) Advance(blockFrames int, apply func(id control.ParamID, value, perFrameInc float64, rampFrames int, sampleAccurate bool)) {
	if blockFrames <= 0 {
		return
	}
	for i := range r.states {
		s := &r.states[i]
		if s.framesLeft == 0 {
			continue
		}
		step := blockFrames
		if s.framesLeft < step {
			step = s.framesLeft
		}
		start := s.value
		inc := s.inc
		s.framesLeft -= step
		if s.framesLeft == 0 {
			// Land exactly on target: rescale the final segment's
			// increment so start + inc*step ends the ramp there.
			s.value = s.target
			inc = (s.target - start) / float64(step)
		} else {
			s.value += inc * float64(step)
		}
		if apply == nil {
			continue
		}
		if s.spec.SampleAccurate {
			apply(s.spec.ID, start, inc, step, true)
		} else {
			apply(s.spec.ID, s.value, 0, 0, false)
		}
	}
}

// Value returns the current interpolated value, or 0 for unknown ids.
func (r *Router) Value(id control.ParamID) float64 {
	if i, ok := r.index[id]; ok {
		return r.states[i].value
	}
	return 0
}

// Each visits every registered parameter with its current value. Used to
// push initial values into the engine before the stream starts.
func (r *Router) Each(fn func(id control.ParamID, value float64)) {
	for i := range r.states {
		fn(r.states[i].spec.ID, r.states[i].value)
	}
}
