// Package render owns the per-buffer audio callback: drain control
// messages, advance voices and parameters, render the engine. Everything
// here runs on the audio thread; the only inbound channel is the bounded
// control queue and the only outbound signals are atomic counters and a
// non-blocking event callback.
package render

import (
	"errors"
	"sync/atomic"

	"github.com/cbegin/synthhost-go/internal/control"
	"github.com/cbegin/synthhost-go/internal/effects"
	"github.com/cbegin/synthhost-go/internal/engine"
	"github.com/cbegin/synthhost-go/internal/params"
	"github.com/cbegin/synthhost-go/internal/voice"
)

// Event identifies conditions the loop reports from the audio thread.
type Event uint8

const (
	// EventEngineFault means the engine failed a Render call and the
	// block was replaced with silence.
	EventEngineFault Event = iota
)

// DefaultDrainBudget caps messages applied per callback when the host
// doesn't choose one. Sized for dense chords plus controller sweeps.
const DefaultDrainBudget = 64

type Config struct {
	Queue     *control.Queue
	Allocator *voice.Allocator
	Router    *params.Router
	Engine    engine.Engine

	// Effects, when non-nil, is applied in place after the engine render.
	Effects *effects.Chain

	// DrainBudget bounds messages consumed per callback (0 = default).
	DrainBudget int

	// OnEvent is invoked on the audio thread; it must not block.
	OnEvent func(Event)
}

// Loop executes one Process per backend callback. It implements the audio
// package's SampleSource contract.
type Loop struct {
	queue   *control.Queue
	alloc   *voice.Allocator
	router  *params.Router
	eng     engine.Engine
	rampEng engine.RampEngine // nil when the engine lacks ramp support
	fx      *effects.Chain
	onEvent func(Event)

	drain []control.Message

	frames       atomic.Int64
	engineFaults atomic.Uint64
	activeVoices atomic.Int64
}

func New(cfg Config) (*Loop, error) {
	if cfg.Queue == nil || cfg.Allocator == nil || cfg.Router == nil || cfg.Engine == nil {
		return nil, errors.New("render: queue, allocator, router, and engine are all required")
	}
	budget := cfg.DrainBudget
	if budget <= 0 {
		budget = DefaultDrainBudget
	}
	l := &Loop{
		queue:   cfg.Queue,
		alloc:   cfg.Allocator,
		router:  cfg.Router,
		eng:     cfg.Engine,
		fx:      cfg.Effects,
		onEvent: cfg.OnEvent,
		drain:   make([]control.Message, budget),
	}
	l.rampEng, _ = cfg.Engine.(engine.RampEngine)

	// Push registered initial values so the engine starts consistent
	// with the router before the first block.
	cfg.Router.Each(func(id control.ParamID, value float64) {
		cfg.Engine.SetParam(id, value)
	})
	return l, nil
}

// Process fills dst with interleaved stereo samples. It always completes
// the full buffer: an engine fault yields silence for this block and
// normal operation resumes on the next call. Only messages drained at the
// start of the call take effect; anything enqueued mid-render waits for
// the next block.
func (l *Loop) Process(dst []float32) {
	frames := len(dst) / 2

	n := l.queue.Drain(l.drain)
	for i := 0; i < n; i++ {
		m := &l.drain[i]
		switch m.Kind {
		case control.KindNoteOn:
			l.alloc.NoteOn(m.Key, m.Pitch, m.Velocity)
		case control.KindNoteOff:
			l.alloc.NoteOff(m.Key)
		case control.KindParamSet:
			l.router.Set(m.Param, m.Value, m.Ramp)
		case control.KindAllNotesOff:
			l.alloc.AllNotesOff()
		}
	}

	l.router.Advance(frames, l.applyParam)

	if err := l.eng.Render(dst[:frames*2], frames); err != nil {
		for i := range dst {
			dst[i] = 0
		}
		l.engineFaults.Add(1)
		if l.onEvent != nil {
			l.onEvent(EventEngineFault)
		}
	} else if l.fx != nil {
		l.fx.ProcessBlock(dst[:frames*2])
	}
	// Odd trailing sample, if the backend ever asks for one.
	if frames*2 < len(dst) {
		dst[len(dst)-1] = 0
	}

	l.alloc.Sweep(l.eng.VoiceActive)
	l.activeVoices.Store(int64(l.alloc.ActiveVoices()))
	l.frames.Add(int64(frames))
}

func (l *Loop) applyParam(id control.ParamID, value, perFrameInc float64, rampFrames int, sampleAccurate bool) {
	if sampleAccurate {
		if l.rampEng != nil {
			l.rampEng.SetParamRamp(id, value, perFrameInc, rampFrames)
			return
		}
		// No ramp support: land on the segment's end value. rampFrames,
		// not blockFrames, so a ramp ending mid-block stops at its target.
		value += perFrameInc * float64(rampFrames)
	}
	l.eng.SetParam(id, value)
}

// FramesRendered reports total frames produced since construction.
func (l *Loop) FramesRendered() int64 { return l.frames.Load() }

// EngineFaults reports how many blocks were replaced with silence.
func (l *Loop) EngineFaults() uint64 { return l.engineFaults.Load() }

// ActiveVoices reports the voice count as of the last completed block.
func (l *Loop) ActiveVoices() int { return int(l.activeVoices.Load()) }
