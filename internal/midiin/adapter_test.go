package midiin

import (
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/synthhost-go/internal/control"
)

const cutoffID = control.ParamID(3)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	q, err := control.NewQueue(8)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAdapter(Config{
		Queue: q,
		CC: map[uint8]CCBinding{
			74: {Param: cutoffID, Min: 20, Max: 20000, Ramp: 5 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestTranslateNoteOn(t *testing.T) {
	a := newTestAdapter(t)
	m, ok := a.Translate(gomidi.NoteOn(2, 60, 100))
	if !ok {
		t.Fatal("note-on not translated")
	}
	if m.Kind != control.KindNoteOn || m.Pitch != 60 || m.Velocity != 100 {
		t.Fatalf("got %+v", m)
	}
	if m.Key != control.MakeVoiceKey(2, 60) {
		t.Fatalf("voice key = %d, want channel+note packing", m.Key)
	}
}

func TestTranslateNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	a := newTestAdapter(t)
	m, ok := a.Translate(gomidi.NoteOn(0, 64, 0))
	if !ok {
		t.Fatal("velocity-0 note-on not translated")
	}
	if m.Kind != control.KindNoteOff {
		t.Fatalf("kind = %d, want NoteOff", m.Kind)
	}
	if m.Key != control.MakeVoiceKey(0, 64) {
		t.Fatalf("voice key = %d", m.Key)
	}
}

func TestTranslateNoteOff(t *testing.T) {
	a := newTestAdapter(t)
	m, ok := a.Translate(gomidi.NoteOff(1, 60))
	if !ok || m.Kind != control.KindNoteOff {
		t.Fatalf("got %+v ok=%v", m, ok)
	}
}

func TestTranslateBoundControllerScales(t *testing.T) {
	a := newTestAdapter(t)
	m, ok := a.Translate(gomidi.ControlChange(0, 74, 127))
	if !ok {
		t.Fatal("bound CC not translated")
	}
	if m.Kind != control.KindParamSet || m.Param != cutoffID {
		t.Fatalf("got %+v", m)
	}
	if m.Value != 20000 {
		t.Fatalf("full-scale CC value = %g, want 20000", m.Value)
	}
	if m.Ramp != 5*time.Millisecond {
		t.Fatalf("ramp = %v, want 5ms", m.Ramp)
	}

	m, _ = a.Translate(gomidi.ControlChange(0, 74, 0))
	if m.Value != 20 {
		t.Fatalf("zero CC value = %g, want binding minimum", m.Value)
	}
}

func TestTranslateUnboundControllerDropped(t *testing.T) {
	a := newTestAdapter(t)
	if _, ok := a.Translate(gomidi.ControlChange(0, 1, 64)); ok {
		t.Fatal("unbound CC should not translate")
	}
}

func TestTranslateChannelModeAllNotesOff(t *testing.T) {
	a := newTestAdapter(t)
	for _, cc := range []uint8{120, 123} {
		m, ok := a.Translate(gomidi.ControlChange(0, cc, 0))
		if !ok || m.Kind != control.KindAllNotesOff {
			t.Fatalf("CC %d: got %+v ok=%v", cc, m, ok)
		}
	}
}

func TestTranslateOutsideVocabulary(t *testing.T) {
	a := newTestAdapter(t)
	if _, ok := a.Translate(gomidi.Pitchbend(0, 1000)); ok {
		t.Fatal("pitch bend should not translate")
	}
	if _, ok := a.Translate(gomidi.AfterTouch(0, 50)); ok {
		t.Fatal("aftertouch should not translate")
	}
}

func TestAdapterRequiresQueue(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatal("nil queue should be rejected")
	}
}
