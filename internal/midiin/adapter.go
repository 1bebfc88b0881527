// Package midiin translates MIDI channel-voice messages into control
// messages and forwards them to the event queue. The driver callback is
// the producer thread; nothing here is shared with the render loop except
// the queue itself.
package midiin

import (
	"errors"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cbegin/synthhost-go/internal/control"
)

// Controller numbers with channel-mode meaning.
const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// CCBinding maps a MIDI controller to a parameter. The 7-bit controller
// value scales linearly into [Min, Max].
type CCBinding struct {
	Param control.ParamID
	Min   float64
	Max   float64
	Ramp  time.Duration
}

type Config struct {
	Queue *control.Queue

	// CC maps controller numbers to parameters. Controllers without a
	// binding are dropped (channel-mode 120/123 always translate to
	// AllNotesOff).
	CC map[uint8]CCBinding
}

// Adapter owns one listening MIDI input port.
type Adapter struct {
	queue   *control.Queue
	cc      map[uint8]CCBinding
	stop    func()
	dropped atomic.Uint64
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Queue == nil {
		return nil, errors.New("midiin: queue is required")
	}
	return &Adapter{queue: cfg.Queue, cc: cfg.CC}, nil
}

// Translate converts one MIDI message into a control message. The second
// return is false for messages outside the vocabulary (aftertouch, unbound
// controllers, sysex). A note-on with velocity 0 is a note-off, per MIDI
// convention.
func (a *Adapter) Translate(msg gomidi.Message) (control.Message, bool) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			return control.NoteOff(control.MakeVoiceKey(ch, key)), true
		}
		return control.NoteOn(control.MakeVoiceKey(ch, key), int(key), int(vel)), true
	case msg.GetNoteOff(&ch, &key, &vel):
		return control.NoteOff(control.MakeVoiceKey(ch, key)), true
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == ccAllSoundOff || cc == ccAllNotesOff {
			return control.AllNotesOff(), true
		}
		b, ok := a.cc[cc]
		if !ok {
			return control.Message{}, false
		}
		value := b.Min + (b.Max-b.Min)*float64(val)/127.0
		return control.ParamSet(b.Param, value, b.Ramp), true
	}
	return control.Message{}, false
}

// Listen starts forwarding messages from port until Stop. Translation and
// enqueueing happen on the driver's callback goroutine; a full queue drops
// the message and bumps the drop counter.
func (a *Adapter) Listen(port drivers.In) error {
	if a.stop != nil {
		return errors.New("midiin: already listening")
	}
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		m, ok := a.Translate(msg)
		if !ok {
			return
		}
		if !a.queue.TrySend(m) {
			a.dropped.Add(1)
		}
	})
	if err != nil {
		return err
	}
	a.stop = stop
	return nil
}

// Stop detaches from the input port. Safe to call when not listening.
func (a *Adapter) Stop() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}

// Dropped reports messages lost to a full queue since construction.
func (a *Adapter) Dropped() uint64 { return a.dropped.Load() }
