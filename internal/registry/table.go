package registry

import (
	"errors"
	"sync"
	"time"
)

// Key identifies one pending listener. The zero value is the NoKey sentinel.
type Key uint64

// NoKey marks an envelope that carries no listener.
const NoKey Key = 0

// ErrFull is returned by Put when every slot holds a pending listener.
var ErrFull = errors.New("listener table full")

// DefaultCapacity is used when NewTable receives a non-positive capacity.
const DefaultCapacity = 256

const slotBits = 32

type slot[L any] struct {
	seq      uint32
	listener L
	deadline time.Time
	used     bool
}

// Entry is a listener removed from the table together with its key.
type Entry[L any] struct {
	Key      Key
	Listener L
}

// Table is a bounded, mutex-guarded listener store. The zero value is not
// usable; construct with NewTable.
type Table[L any] struct {
	mu      sync.Mutex
	slots   []slot[L]
	free    []uint32
	seq     uint32
	pending int
	ttl     time.Duration
	now     func() time.Time
}

// Option customizes a Table.
type Option func(*tableOptions)

type tableOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *tableOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewTable returns a table holding at most capacity listeners. A ttl of zero
// disables deadlines.
func NewTable[L any](capacity int, ttl time.Duration, opts ...Option) *Table[L] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	o := tableOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	t := &Table[L]{
		slots: make([]slot[L], capacity),
		free:  make([]uint32, 0, capacity),
		ttl:   ttl,
		now:   o.now,
	}
	for i := capacity - 1; i >= 0; i-- {
		t.free = append(t.free, uint32(i))
	}
	return t
}

// Put stores listener and returns its key.
func (t *Table[L]) Put(listener L) (Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) == 0 {
		return NoKey, ErrFull
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	t.seq++
	if t.seq == 0 {
		t.seq = 1
	}
	s := &t.slots[idx]
	s.seq = t.seq
	s.listener = listener
	s.used = true
	if t.ttl > 0 {
		s.deadline = t.now().Add(t.ttl)
	} else {
		s.deadline = time.Time{}
	}
	t.pending++
	return makeKey(t.seq, idx), nil
}

// Take removes and returns the listener for key. It reports false for NoKey,
// for keys this table never issued, and for keys already taken.
func (t *Table[L]) Take(key Key) (L, bool) {
	var zero L
	if key == NoKey {
		return zero, false
	}
	seq, idx := splitKey(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	if int(idx) >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[idx]
	if !s.used || s.seq != seq {
		return zero, false
	}
	listener := s.listener
	t.release(idx)
	return listener, true
}

// Expire removes every entry whose deadline is not after now and returns them.
func (t *Table[L]) Expire() []Entry[L] {
	if t.ttl <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []Entry[L]
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used || s.deadline.After(now) {
			continue
		}
		expired = append(expired, Entry[L]{Key: makeKey(s.seq, uint32(i)), Listener: s.listener})
		t.release(uint32(i))
	}
	return expired
}

// Drain removes and returns every pending entry.
func (t *Table[L]) Drain() []Entry[L] {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := make([]Entry[L], 0, t.pending)
	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			continue
		}
		drained = append(drained, Entry[L]{Key: makeKey(s.seq, uint32(i)), Listener: s.listener})
		t.release(uint32(i))
	}
	return drained
}

// Len reports the number of pending listeners.
func (t *Table[L]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Table[L]) release(idx uint32) {
	var zero L
	s := &t.slots[idx]
	s.listener = zero
	s.used = false
	s.deadline = time.Time{}
	t.free = append(t.free, idx)
	t.pending--
}

func makeKey(seq uint32, idx uint32) Key {
	return Key(uint64(seq)<<slotBits | uint64(idx+1))
}

func splitKey(key Key) (uint32, uint32) {
	return uint32(uint64(key) >> slotBits), uint32(uint64(key)&(1<<slotBits-1)) - 1
}
