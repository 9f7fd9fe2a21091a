// Package clock abstracts wall-clock scheduling so that timers can be driven
// by virtual time in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

type (
	// Timer is a pending callback created by Clock.AfterFunc.
	Timer interface {
		// Stop prevents the callback from firing. It reports whether the
		// timer was still pending.
		Stop() bool
	}

	Clock interface {
		Now() time.Time
		AfterFunc(d time.Duration, f func()) Timer
	}
)

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a virtual clock. Time only moves when Advance is called, and due
// callbacks run on the goroutine calling Advance.
type Manual struct {
	mx     *sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	m        *Manual
	deadline time.Time
	seq      uint64
	f        func()
}

func NewManual(start time.Time) *Manual {
	return &Manual{
		mx:  &sync.Mutex{},
		now: start,
	}
}

func (m *Manual) Now() time.Time {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mx.Lock()
	defer m.mx.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{
		m:        m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		f:        f,
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every timer whose deadline
// is reached in deadline order. Timers scheduled by fired callbacks are
// honoured within the same call if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mx.Lock()
	target := m.now.Add(d)
	m.mx.Unlock()

	for {
		m.mx.Lock()
		next := m.popDue(target)
		if next == nil {
			m.now = target
			m.mx.Unlock()
			return
		}
		m.now = next.deadline
		m.mx.Unlock()

		next.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.timers)
}

func (m *Manual) popDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})
	first := m.timers[0]
	if first.deadline.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	return first
}

func (t *manualTimer) Stop() bool {
	t.m.mx.Lock()
	defer t.m.mx.Unlock()

	for i, other := range t.m.timers {
		if other == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			return true
		}
	}
	return false
}
