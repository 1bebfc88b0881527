// Package voice maps note events onto a fixed pool of engine slots.
package voice

import (
	"errors"

	"github.com/cbegin/synthhost-go/internal/control"
)

// Trigger is the slice of the engine contract the allocator drives.
type Trigger interface {
	Trigger(slot, pitch, velocity int)
	Release(slot int)
}

// State tracks where a slot is in its note lifecycle.
type State uint8

const (
	StateFree State = iota
	StateSustaining
	StateReleasing
)

// StealPolicy selects the victim slot when the pool is exhausted.
type StealPolicy uint8

const (
	// StealOldest prefers the oldest releasing slot, then the oldest
	// sustaining slot, ties broken by lowest slot index.
	StealOldest StealPolicy = iota
)

// Slot is one entry of the pre-allocated pool. Slots are recycled for the
// lifetime of the process; the render loop mutates them only through the
// Allocator.
type Slot struct {
	Key       control.VoiceKey
	Pitch     int
	State     State
	StartTime uint64
}

// Allocator owns the slot pool. All methods are audio-thread only.
type Allocator struct {
	slots  []Slot
	eng    Trigger
	policy StealPolicy
	clock  uint64
}

func NewAllocator(poolSize int, eng Trigger, policy StealPolicy) (*Allocator, error) {
	if poolSize < 1 {
		return nil, errors.New("voice: pool size must be at least 1")
	}
	if eng == nil {
		return nil, errors.New("voice: nil engine")
	}
	return &Allocator{
		slots:  make([]Slot, poolSize),
		eng:    eng,
		policy: policy,
	}, nil
}

// NoteOn assigns a slot to key and triggers the engine for it. A key that
// is already sustaining retriggers its existing slot, so one key never
// occupies two slots. Otherwise it never fails: when no slot is free a
// victim is stolen and retriggered with the new note. Returns the slot
// index.
func (a *Allocator) NoteOn(key control.VoiceKey, pitch, velocity int) int {
	idx := a.sustainingSlot(key)
	if idx < 0 {
		idx = a.freeSlot()
	}
	if idx < 0 {
		idx = a.victim()
	}
	a.clock++
	a.slots[idx] = Slot{
		Key:       key,
		Pitch:     pitch,
		State:     StateSustaining,
		StartTime: a.clock,
	}
	a.eng.Trigger(idx, pitch, velocity)
	return idx
}

// NoteOff moves the sustaining slot for key into release. A key with no
// sustaining slot (already stolen, or a producer race) is a no-op.
func (a *Allocator) NoteOff(key control.VoiceKey) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.State == StateSustaining && s.Key == key {
			s.State = StateReleasing
			a.eng.Release(i)
			return
		}
	}
}

// AllNotesOff forces every active slot into release immediately.
func (a *Allocator) AllNotesOff() {
	for i := range a.slots {
		if a.slots[i].State == StateSustaining {
			a.slots[i].State = StateReleasing
			a.eng.Release(i)
		}
	}
}

// Sweep frees slots whose engine voice has finished sounding. Called once
// per render block with the engine's per-slot activity report.
func (a *Allocator) Sweep(active func(slot int) bool) {
	for i := range a.slots {
		if a.slots[i].State != StateFree && !active(i) {
			a.slots[i] = Slot{}
		}
	}
}

// ActiveVoices counts slots that are sustaining or releasing.
func (a *Allocator) ActiveVoices() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].State != StateFree {
			n++
		}
	}
	return n
}

// SlotState reports the lifecycle state of a slot, for inspection.
func (a *Allocator) SlotState(idx int) State { return a.slots[idx].State }

// SlotKey reports the key occupying a slot.
func (a *Allocator) SlotKey(idx int) control.VoiceKey { return a.slots[idx].Key }

func (a *Allocator) sustainingSlot(key control.VoiceKey) int {
	for i := range a.slots {
		if a.slots[i].State == StateSustaining && a.slots[i].Key == key {
			return i
		}
	}
	return -1
}

func (a *Allocator) freeSlot() int {
	for i := range a.slots {
		if a.slots[i].State == StateFree {
			return i
		}
	}
	return -1
}

// victim picks the slot to steal. Strict less-than on StartTime with an
// ascending scan keeps ties on the lowest index, so the choice is
// deterministic under fixed input ordering.
func (a *Allocator) victim() int {
	best := -1
	for _, want := range []State{StateReleasing, StateSustaining} {
		for i := range a.slots {
			if a.slots[i].State != want {
				continue
			}
			if best < 0 || a.slots[i].StartTime < a.slots[best].StartTime {
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}
	// Unreachable when NoteOn is the only caller: the pool had no free
	// slot, so some slot is active.
	return 0
}
