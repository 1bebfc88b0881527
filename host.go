// Package synthhost bridges asynchronous MIDI and UI control events into a
// deterministic audio render loop driving a polyphonic synthesis engine.
package synthhost

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/synthhost-go/internal/audio"
	"github.com/cbegin/synthhost-go/internal/control"
	"github.com/cbegin/synthhost-go/internal/effects"
	"github.com/cbegin/synthhost-go/internal/engine"
	"github.com/cbegin/synthhost-go/internal/params"
	"github.com/cbegin/synthhost-go/internal/render"
	"github.com/cbegin/synthhost-go/internal/voice"
)

// VoiceKey identifies a logical note across NoteOn/NoteOff pairs.
type VoiceKey = control.VoiceKey

// ParamID identifies a registered parameter.
type ParamID = control.ParamID

// MakeVoiceKey packs a MIDI channel and note into a VoiceKey.
func MakeVoiceKey(channel, note uint8) VoiceKey {
	return control.MakeVoiceKey(channel, note)
}

// Parameters every host registers. Custom parameters start above
// ParamUserBase.
const (
	ParamMasterGain ParamID = iota
	ParamCutoff
	ParamVibratoRate
	ParamVibratoDepth

	ParamUserBase ParamID = 64
)

// Engine is the synthesis-engine contract. The host owns the engine
// exclusively on the audio thread; implementations must not block,
// allocate, or lock in any method.
type Engine interface {
	Trigger(slot, pitch, velocity int)
	Release(slot int)
	SetParam(id ParamID, value float64)
	Render(dst []float32, frames int) error
	VoiceActive(slot int) bool
}

// HostEvent carries out-of-band conditions from Watch().
type HostEvent struct {
	Kind int
}

const (
	// EventMessageDropped: a control message was discarded because the
	// event queue was full.
	EventMessageDropped int = iota
	// EventEngineFault: the engine failed a render and the block was
	// replaced with silence.
	EventEngineFault
)

// ParamSpec registers an additional parameter with the router. The default
// engine ignores ids it has no binding for; custom engines receive every
// registered parameter through SetParam.
type ParamSpec struct {
	ID             ParamID
	Name           string
	Initial        float64
	Min            float64
	Max            float64
	SampleAccurate bool
}

type HostOption func(*hostConfig)

type hostConfig struct {
	voices      int
	queueCap    int
	drainBudget int
	engine      Engine
	extraParams []ParamSpec
	delay       *delayConfig
	useChip     bool
	fmParams    engine.FMParams
	chipParams  engine.ChipParams
}

type delayConfig struct {
	ms              float64
	feedback, cross float64
	wet             float64
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		voices:      16,
		queueCap:    256,
		drainBudget: render.DefaultDrainBudget,
		fmParams:    engine.DefaultFMParams(),
		chipParams:  engine.DefaultChipParams(),
	}
}

// WithVoices sets the fixed voice-pool size (default 16).
func WithVoices(n int) HostOption {
	return func(cfg *hostConfig) { cfg.voices = n }
}

// WithQueueCapacity sets the event-queue capacity (default 256, rounded
// up to a power of two).
func WithQueueCapacity(n int) HostOption {
	return func(cfg *hostConfig) { cfg.queueCap = n }
}

// WithDrainBudget caps control messages applied per audio callback.
func WithDrainBudget(n int) HostOption {
	return func(cfg *hostConfig) { cfg.drainBudget = n }
}

// WithEngine substitutes the synthesis engine. The default is the built-in
// FM engine.
func WithEngine(e Engine) HostOption {
	return func(cfg *hostConfig) { cfg.engine = e }
}

// WithChipEngine swaps in the chip-style pulse/triangle/noise engine.
func WithChipEngine() HostOption {
	return func(cfg *hostConfig) { cfg.useChip = true }
}

// WithParam registers an additional parameter.
func WithParam(spec ParamSpec) HostOption {
	return func(cfg *hostConfig) { cfg.extraParams = append(cfg.extraParams, spec) }
}

// WithDelay inserts a stereo delay into the master effects chain.
func WithDelay(delayMs, feedback, cross, wet float64) HostOption {
	return func(cfg *hostConfig) {
		cfg.delay = &delayConfig{ms: delayMs, feedback: feedback, cross: cross, wet: wet}
	}
}

// Host is the public face of the synthesizer. Control methods (NoteOn,
// NoteOff, SetParam, AllNotesOff) may be called from any goroutine; they
// enqueue and never block. Everything else about rendering happens on the
// backend's audio thread.
type Host struct {
	mu         sync.Mutex
	sampleRate int
	baseGain   float64
	volume     float64
	queue      *control.Queue
	loop       *render.Loop
	eq         *effects.EQ
	out        audio.Output
	started    bool

	dropped atomic.Uint64

	eventCh   chan HostEvent
	eventChMu sync.Mutex
}

func NewHost(sampleRate int, opts ...HostOption) (*Host, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &Host{
		sampleRate: sampleRate,
		volume:     1,
	}
	c, err := buildCore(sampleRate, &cfg, func(ev render.Event) {
		if ev == render.EventEngineFault {
			h.sendEvent(HostEvent{Kind: EventEngineFault})
		}
	})
	if err != nil {
		return nil, err
	}
	h.baseGain = c.baseGain
	h.queue = c.queue
	h.loop = c.loop
	h.eq = c.eq
	return h, nil
}

// core bundles the audio-thread side of a host, shared between live
// playback and offline rendering.
type core struct {
	queue    *control.Queue
	loop     *render.Loop
	eq       *effects.EQ
	baseGain float64
}

func buildCore(sampleRate int, cfg *hostConfig, onEvent func(render.Event)) (*core, error) {
	if sampleRate <= 0 {
		return nil, errors.New("synthhost: sampleRate must be positive")
	}
	queue, err := control.NewQueue(cfg.queueCap)
	if err != nil {
		return nil, err
	}

	eng := cfg.engine
	gain := cfg.fmParams.MasterGain
	cutoff := cfg.fmParams.LPFCutoff
	vibRate, vibDepth := cfg.fmParams.VibratoRateHz, cfg.fmParams.VibratoSemi
	if eng == nil {
		if cfg.useChip {
			ch := engine.NewChip(sampleRate, cfg.voices, cfg.chipParams)
			ch.BindParam(ParamMasterGain, engine.TargetMasterGain)
			ch.BindParam(ParamCutoff, engine.TargetCutoff)
			ch.BindParam(ParamVibratoRate, engine.TargetVibratoRate)
			ch.BindParam(ParamVibratoDepth, engine.TargetVibratoDepth)
			eng = ch
			gain = cfg.chipParams.MasterGain
			cutoff = cfg.chipParams.LPFCutoff
			vibRate, vibDepth = cfg.chipParams.VibratoRateHz, cfg.chipParams.VibratoSemi
		} else {
			fm := engine.NewFM(sampleRate, cfg.voices, cfg.fmParams)
			fm.BindParam(ParamMasterGain, engine.TargetMasterGain)
			fm.BindParam(ParamCutoff, engine.TargetCutoff)
			fm.BindParam(ParamVibratoRate, engine.TargetVibratoRate)
			fm.BindParam(ParamVibratoDepth, engine.TargetVibratoDepth)
			eng = fm
		}
	}

	alloc, err := voice.NewAllocator(cfg.voices, eng, voice.StealOldest)
	if err != nil {
		return nil, err
	}

	specs := []params.Spec{
		{ID: ParamMasterGain, Name: "master-gain", Initial: gain, Min: 0, Max: 2, SampleAccurate: true},
		{ID: ParamCutoff, Name: "cutoff", Initial: cutoff, Min: 0, Max: float64(sampleRate) / 2},
		{ID: ParamVibratoRate, Name: "vibrato-rate", Initial: vibRate, Min: 0, Max: 20},
		{ID: ParamVibratoDepth, Name: "vibrato-depth", Initial: vibDepth, Min: 0, Max: 12},
	}
	for _, sp := range cfg.extraParams {
		if sp.ID < ParamUserBase {
			return nil, fmt.Errorf("synthhost: parameter %q id %d collides with reserved ids (use ParamUserBase and above)", sp.Name, sp.ID)
		}
		specs = append(specs, params.Spec{
			ID:             sp.ID,
			Name:           sp.Name,
			Initial:        sp.Initial,
			Min:            sp.Min,
			Max:            sp.Max,
			SampleAccurate: sp.SampleAccurate,
		})
	}
	router, err := params.NewRouter(sampleRate, specs...)
	if err != nil {
		return nil, err
	}

	eq := effects.NewEQ(sampleRate)
	inserts := []effects.Effector{}
	if cfg.delay != nil {
		inserts = append(inserts, effects.NewDelay(sampleRate, cfg.delay.ms,
			float32(cfg.delay.feedback), float32(cfg.delay.cross), float32(cfg.delay.wet)))
	}
	inserts = append(inserts, eq)

	loop, err := render.New(render.Config{
		Queue:       queue,
		Allocator:   alloc,
		Router:      router,
		Engine:      eng,
		Effects:     effects.NewChain(inserts...),
		DrainBudget: cfg.drainBudget,
		OnEvent:     onEvent,
	})
	if err != nil {
		return nil, err
	}
	return &core{queue: queue, loop: loop, eq: eq, baseGain: gain}, nil
}

// Start opens the audio backend and begins playback.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return errors.New("synthhost: already started")
	}
	out, err := audio.NewPlayer(h.sampleRate, h.loop)
	if err != nil {
		return err
	}
	h.out = out
	h.started = true
	out.Play()
	return nil
}

// StartOto is Start over the direct oto backend.
func (h *Host) StartOto() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return errors.New("synthhost: already started")
	}
	out, err := audio.NewOtoPlayer(h.sampleRate, h.loop)
	if err != nil {
		return err
	}
	h.out = out
	h.started = true
	out.Play()
	return nil
}

func (h *Host) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out != nil {
		h.out.Pause()
	}
}

func (h *Host) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out != nil {
		h.out.Play()
	}
}

func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out == nil {
		return nil
	}
	err := h.out.Stop()
	h.out = nil
	h.started = false
	return err
}

// NoteOn enqueues a note-on. Returns false when the queue was full and the
// message was dropped.
func (h *Host) NoteOn(key VoiceKey, pitch, velocity int) bool {
	return h.send(control.NoteOn(key, pitch, velocity))
}

// NoteOff enqueues a note-off for key. Unknown keys are a no-op downstream.
func (h *Host) NoteOff(key VoiceKey) bool {
	return h.send(control.NoteOff(key))
}

// SetParam enqueues a parameter retarget ramped over ramp.
func (h *Host) SetParam(id ParamID, value float64, ramp time.Duration) bool {
	return h.send(control.ParamSet(id, value, ramp))
}

// AllNotesOff releases every sounding voice.
func (h *Host) AllNotesOff() bool {
	return h.send(control.AllNotesOff())
}

func (h *Host) send(m control.Message) bool {
	if h.queue.TrySend(m) {
		return true
	}
	h.dropped.Add(1)
	h.sendEvent(HostEvent{Kind: EventMessageDropped})
	return false
}

// SetMasterVolume scales the engine master gain. 1.0 is the engine
// default. The change rides the queue like any parameter so the audio
// thread keeps sole ownership of ramp state.
func (h *Host) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	h.mu.Lock()
	h.volume = volume
	base := h.baseGain
	h.mu.Unlock()
	h.SetParam(ParamMasterGain, base*volume, 15*time.Millisecond)
}

func (h *Host) MasterVolume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// SetEQBand sets a master EQ band gain (0-4), 1.0 = unity. Takes effect
// immediately on the audio thread, lock-free.
func (h *Host) SetEQBand(band int, gain float32) {
	h.eq.SetGain(band, gain)
}

// EQBand returns the current gain of a master EQ band.
func (h *Host) EQBand(band int) float32 {
	return h.eq.Gain(band)
}

// Watch returns a channel receiving host events (dropped messages, engine
// faults). The channel is buffered (cap 8); events are discarded rather
// than block a producer or the audio thread. Only the most recent Watch
// channel receives events.
func (h *Host) Watch() <-chan HostEvent {
	ch := make(chan HostEvent, 8)
	h.eventChMu.Lock()
	h.eventCh = ch
	h.eventChMu.Unlock()
	return ch
}

func (h *Host) sendEvent(ev HostEvent) {
	h.eventChMu.Lock()
	ch := h.eventCh
	h.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Receiver is behind; drop rather than stall.
		}
	}
}

// ActiveVoices reports sounding voices as of the last rendered block.
func (h *Host) ActiveVoices() int { return h.loop.ActiveVoices() }

// DroppedMessages reports control messages lost to a full queue.
func (h *Host) DroppedMessages() uint64 { return h.dropped.Load() }

// EngineFaults reports render blocks replaced with silence.
func (h *Host) EngineFaults() uint64 { return h.loop.EngineFaults() }

// PlaybackPosition returns what the listener hears right now, in frames.
// Falls back to frames rendered when the backend has no position report.
func (h *Host) PlaybackPosition() int64 {
	h.mu.Lock()
	out := h.out
	h.mu.Unlock()
	if p, ok := out.(interface{ Position() time.Duration }); ok {
		return int64(p.Position().Seconds() * float64(h.sampleRate))
	}
	return h.loop.FramesRendered()
}
