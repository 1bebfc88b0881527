package synthhost

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/cbegin/synthhost-go/internal/control"
)

// Script is a time-ordered list of control events for offline rendering.
// Build it with the scheduling methods, then hand it to RenderScript.
type Script struct {
	events []scheduledMessage
}

type scheduledMessage struct {
	at  time.Duration
	msg control.Message
}

func NewScript() *Script { return &Script{} }

func (s *Script) NoteOn(at time.Duration, key VoiceKey, pitch, velocity int) *Script {
	return s.add(at, control.NoteOn(key, pitch, velocity))
}

func (s *Script) NoteOff(at time.Duration, key VoiceKey) *Script {
	return s.add(at, control.NoteOff(key))
}

func (s *Script) SetParam(at time.Duration, id ParamID, value float64, ramp time.Duration) *Script {
	return s.add(at, control.ParamSet(id, value, ramp))
}

func (s *Script) AllNotesOff(at time.Duration) *Script {
	return s.add(at, control.AllNotesOff())
}

func (s *Script) add(at time.Duration, m control.Message) *Script {
	s.events = append(s.events, scheduledMessage{at: at, msg: m})
	return s
}

const offlineBlockFrames = 256

// RenderScript renders a script to interleaved stereo float32 without an
// audio device, reusing the live render path block by block. Events due
// within a block are enqueued just before it; bursts larger than the
// queue spill into following blocks.
func RenderScript(sampleRate int, duration time.Duration, script *Script, opts ...HostOption) ([]float32, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := buildCore(sampleRate, &cfg, nil)
	if err != nil {
		return nil, err
	}

	events := make([]scheduledMessage, len(script.events))
	copy(events, script.events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].at < events[j].at })

	totalFrames := int(float64(sampleRate) * duration.Seconds())
	out := make([]float32, totalFrames*2)

	next := 0
	for start := 0; start < totalFrames; start += offlineBlockFrames {
		blockEnd := time.Duration(start+offlineBlockFrames) * time.Second / time.Duration(sampleRate)
		for next < len(events) && events[next].at < blockEnd {
			if !c.queue.TrySend(events[next].msg) {
				break
			}
			next++
		}
		end := start + offlineBlockFrames
		if end > totalFrames {
			end = totalFrames
		}
		c.loop.Process(out[start*2 : end*2])
	}
	return out, nil
}

// wavFormatIEEEFloat is the WAVE_FORMAT_IEEE_FLOAT format tag.
const wavFormatIEEEFloat = 3

// wavHeader is the fixed 44-byte canonical RIFF/WAVE prelude, laid out
// for binary.Write.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVFloat32LE wraps interleaved float32 samples in a WAV container
// (format 3, IEEE float).
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	const sampleBytes = 4
	dataSize := len(samples) * sampleBytes
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		Format:        wavFormatIEEEFloat,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * sampleBytes),
		BlockAlign:    uint16(channels * sampleBytes),
		BitsPerSample: 32,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(h)+dataSize))
	binary.Write(buf, binary.LittleEndian, h)
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
