// Package stream implements small typed multicast streams.
//
// Value caches the latest value and replays it to new subscribers. Event
// only delivers values emitted while subscribed. Subscribers are invoked
// synchronously, in subscription order, without any lock held, so they may
// subscribe, unsubscribe or emit from inside a callback.
package stream

import "sync"

type entry[T any] struct {
	id uint64
	fn func(T)
}

type subscribers[T any] struct {
	mx   *sync.Mutex
	next uint64
	subs []entry[T]
}

func newSubscribers[T any]() subscribers[T] {
	return subscribers[T]{mx: &sync.Mutex{}}
}

func (s *subscribers[T]) add(fn func(T)) uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.next++
	s.subs = append(s.subs, entry[T]{id: s.next, fn: fn})
	return s.next
}

func (s *subscribers[T]) unsubscriber(id uint64) func() {
	subscribed := true
	return func() {
		s.mx.Lock()
		defer s.mx.Unlock()
		if !subscribed {
			return
		}
		subscribed = false

		filtered := make([]entry[T], 0, len(s.subs))
		for _, e := range s.subs {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		s.subs = filtered
	}
}

func (s *subscribers[T]) contains(id uint64) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, e := range s.subs {
		if e.id == id {
			return true
		}
	}
	return false
}

func (s *subscribers[T]) snapshot() []entry[T] {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]entry[T](nil), s.subs...)
}

func (s *subscribers[T]) count() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.subs)
}

func (s *subscribers[T]) notify(v T) {
	for _, e := range s.snapshot() {
		// skip subscribers removed by an earlier callback of this round
		if !s.contains(e.id) {
			continue
		}
		e.fn(v)
	}
}

// Value is a latest-value stream.
type Value[T any] struct {
	mx   *sync.Mutex
	v    T
	subs subscribers[T]
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		mx:   &sync.Mutex{},
		v:    initial,
		subs: newSubscribers[T](),
	}
}

func (v *Value[T]) Get() T {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.v
}

// Set stores x and delivers it to every subscriber.
func (v *Value[T]) Set(x T) {
	v.mx.Lock()
	v.v = x
	v.mx.Unlock()
	v.subs.notify(x)
}

// Subscribe calls fn with the current value, then with every later value
// until the returned function is called.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	id := v.subs.add(fn)
	unsubscribe := v.subs.unsubscriber(id)
	fn(v.Get())
	return unsubscribe
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	return v.subs.count()
}

// Event is a stream of discrete values with no replay.
type Event[T any] struct {
	subs subscribers[T]
}

func NewEvent[T any]() *Event[T] {
	return &Event[T]{subs: newSubscribers[T]()}
}

func (e *Event[T]) Emit(x T) {
	e.subs.notify(x)
}

func (e *Event[T]) Subscribe(fn func(T)) func() {
	id := e.subs.add(fn)
	return e.subs.unsubscriber(id)
}

func (e *Event[T]) Subscribers() int {
	return e.subs.count()
}
