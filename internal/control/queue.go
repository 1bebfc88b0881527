package control

import (
	"errors"
	"sync/atomic"
)

// Queue is a bounded multi-producer single-consumer ring of Messages.
// Producers share TrySend; Drain belongs to the audio thread alone.
// Neither side blocks and nothing is allocated after construction.
//
// Each slot carries a sequence number (Vyukov bounded-queue scheme):
// a producer claims a slot by advancing the enqueue cursor with CAS,
// writes the message, then publishes by bumping the slot sequence. The
// consumer only ever reads slots whose sequence says the write finished,
// so a stalled producer can never hand the consumer a torn message.
type Queue struct {
	mask  uint64
	slots []qslot

	enqueuePos atomic.Uint64

	// dequeuePos is owned by the single consumer; no atomics needed.
	dequeuePos uint64
}

type qslot struct {
	seq atomic.Uint64
	msg Message
}

// NewQueue creates a queue holding at least capacity messages. Capacity is
// rounded up to a power of two so cursor arithmetic stays mask-based.
func NewQueue(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, errors.New("control: queue capacity must be at least 1")
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Queue{
		mask:  uint64(n - 1),
		slots: make([]qslot, n),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q, nil
}

// Cap returns the fixed capacity in messages.
func (q *Queue) Cap() int { return len(q.slots) }

// TrySend enqueues m, returning false when the queue is full. Safe to call
// from any number of goroutines, but never from the audio thread.
func (q *Queue) TrySend(m Message) bool {
	pos := q.enqueuePos.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				s.msg = m
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.enqueuePos.Load()
		case seq < pos:
			// The slot still holds a message the consumer hasn't taken.
			return false
		default:
			pos = q.enqueuePos.Load()
		}
	}
}

// Drain copies at most len(dst) pending messages into dst and returns how
// many were copied, preserving per-producer FIFO order. Audio thread only.
func (q *Queue) Drain(dst []Message) int {
	n := 0
	for n < len(dst) {
		s := &q.slots[q.dequeuePos&q.mask]
		if s.seq.Load() != q.dequeuePos+1 {
			break
		}
		dst[n] = s.msg
		s.seq.Store(q.dequeuePos + uint64(len(q.slots)))
		q.dequeuePos++
		n++
	}
	return n
}
