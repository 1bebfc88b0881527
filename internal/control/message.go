package control

import "time"

// VoiceKey identifies the logical note a message refers to. MIDI producers
// pack channel and note number; any producer-unique value works.
type VoiceKey uint32

// MakeVoiceKey packs a MIDI channel and note number into a VoiceKey.
func MakeVoiceKey(channel, note uint8) VoiceKey {
	return VoiceKey(uint32(channel)<<8 | uint32(note))
}

// ParamID identifies a registered parameter.
type ParamID uint16

// Kind discriminates Message variants.
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindParamSet
	KindAllNotesOff
)

// Message is the unit carried across the queue boundary. It is copied by
// value on enqueue and dequeue; producers and the audio thread never share
// a reference to one.
type Message struct {
	Kind     Kind
	Key      VoiceKey
	Pitch    int
	Velocity int
	Param    ParamID
	Value    float64
	Ramp     time.Duration
}

func NoteOn(key VoiceKey, pitch, velocity int) Message {
	return Message{Kind: KindNoteOn, Key: key, Pitch: pitch, Velocity: velocity}
}

func NoteOff(key VoiceKey) Message {
	return Message{Kind: KindNoteOff, Key: key}
}

func ParamSet(id ParamID, value float64, ramp time.Duration) Message {
	return Message{Kind: KindParamSet, Param: id, Value: value, Ramp: ramp}
}

func AllNotesOff() Message {
	return Message{Kind: KindAllNotesOff}
}
