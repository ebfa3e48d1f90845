package scxslo

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// ErrShortEvent is returned by Decode when a buffer is too small to
// hold a DeadlineEvent.
var ErrShortEvent = errors.New("scxslo: event buffer shorter than wire size")

// Encode serializes e as 24 little-endian bytes: WorkloadID, MissNS,
// Timestamp, in declaration order. This matches the original's
// ringbuf record layout exactly, so a consumer reading the raw ringbuf
// needs no translation layer.
func (e DeadlineEvent) Encode() [EventWireSize]byte {
	var buf [EventWireSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.WorkloadID))
	binary.LittleEndian.PutUint64(buf[8:16], e.MissNS)
	binary.LittleEndian.PutUint64(buf[16:24], e.Timestamp)
	return buf
}

// Decode parses a DeadlineEvent from data. Per the wire compatibility
// rules: a buffer shorter than EventWireSize is rejected, while a
// buffer longer than EventWireSize is accepted and any trailing bytes
// (a hypothetical future field a newer producer appended) are ignored,
// so an older consumer keeps working against a newer producer.
func Decode(data []byte) (DeadlineEvent, error) {
	if len(data) < EventWireSize {
		return DeadlineEvent{}, ErrShortEvent
	}
	return DeadlineEvent{
		WorkloadID: WID(binary.LittleEndian.Uint64(data[0:8])),
		MissNS:     binary.LittleEndian.Uint64(data[8:16]),
		Timestamp:  binary.LittleEndian.Uint64(data[16:24]),
	}, nil
}

// EventSink is a bounded ring buffer of pending DeadlineEvents,
// standing in for the original's BPF ringbuf. Emit drops the incoming
// event when full rather than blocking the caller or overwriting an
// already-queued record, matching bpf_ringbuf_reserve's behavior on a
// full ring: the reservation fails and the event is discarded, leaving
// existing records untouched.
type EventSink struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []DeadlineEvent
	capacity int
	head     int
	size     int
	dropped  uint64
}

// NewEventSink returns an EventSink holding at most capacity unread
// events.
func NewEventSink(capacity int) *EventSink {
	if capacity <= 0 {
		capacity = 4096
	}
	s := &EventSink{buf: make([]DeadlineEvent, capacity), capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Emit appends an event, dropping e itself and reporting dropped=true
// if the sink is full.
func (s *EventSink) Emit(e DeadlineEvent) (dropped bool) {
	s.mu.Lock()
	if s.size == s.capacity {
		s.dropped++
		s.mu.Unlock()
		return true
	}
	tail := (s.head + s.size) % s.capacity
	s.buf[tail] = e
	s.size++
	s.mu.Unlock()
	s.cond.Signal()
	return false
}

// Dropped reports how many events Emit has discarded because the sink
// was full.
func (s *EventSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Poll drains up to max pending events, blocking up to timeout for at
// least one to arrive if the sink is currently empty. A non-positive
// timeout returns immediately with whatever is already available.
func (s *EventSink) Poll(max int, timeout time.Duration) []DeadlineEvent {
	if max <= 0 {
		return nil
	}
	s.mu.Lock()
	if s.size == 0 && timeout > 0 {
		deadline := time.Now().Add(timeout)
		expired := false
		go func() {
			time.Sleep(timeout)
			s.mu.Lock()
			expired = true
			s.cond.Broadcast()
			s.mu.Unlock()
		}()
		for s.size == 0 && !expired && time.Now().Before(deadline) {
			s.cond.Wait()
		}
	}
	n := max
	if n > s.size {
		n = s.size
	}
	out := make([]DeadlineEvent, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.head+i)%s.capacity]
	}
	s.head = (s.head + n) % s.capacity
	s.size -= n
	s.mu.Unlock()
	return out
}

// Len reports the number of currently unread events.
func (s *EventSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
