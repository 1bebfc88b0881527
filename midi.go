package synthhost

import (
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cbegin/synthhost-go/internal/midiin"
)

// CCBinding routes a MIDI continuous controller to a parameter. The 7-bit
// controller value scales linearly into [Min, Max] and ramps over Ramp.
type CCBinding struct {
	Param ParamID
	Min   float64
	Max   float64
	Ramp  time.Duration
}

// MIDIInput is a live subscription to one MIDI input port.
type MIDIInput struct {
	adapter *midiin.Adapter
}

// ListenMIDI subscribes the host to a MIDI input port. Note on/off and
// channel-mode all-notes-off always translate; controllers translate only
// through cc. Messages arrive on the driver's callback goroutine and ride
// the same queue as the producer methods.
func (h *Host) ListenMIDI(port drivers.In, cc map[uint8]CCBinding) (*MIDIInput, error) {
	bindings := make(map[uint8]midiin.CCBinding, len(cc))
	for num, b := range cc {
		bindings[num] = midiin.CCBinding{Param: b.Param, Min: b.Min, Max: b.Max, Ramp: b.Ramp}
	}
	adapter, err := midiin.NewAdapter(midiin.Config{Queue: h.queue, CC: bindings})
	if err != nil {
		return nil, err
	}
	if err := adapter.Listen(port); err != nil {
		return nil, err
	}
	return &MIDIInput{adapter: adapter}, nil
}

// Stop detaches from the port.
func (m *MIDIInput) Stop() { m.adapter.Stop() }

// Dropped reports MIDI messages lost to a full queue.
func (m *MIDIInput) Dropped() uint64 { return m.adapter.Dropped() }
