// Package loop provides the single logical thread the client runs on.
//
// Every callback that touches session state (inbound messages, connection
// state changes, timer fires, REST completions, user actions) is posted to a
// Loop and executed one at a time, in posting order.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/dupuishugo80/ranked4/client/clock"
	"github.com/rs/zerolog"
)

type Config struct {
	Logger *zerolog.Logger
	Clock  clock.Clock
}

type Loop struct {
	logger zerolog.Logger
	clock  clock.Clock

	mx       *sync.Mutex
	idle     *sync.Cond
	queue    []func()
	inflight int
	running  bool
	closed   bool
	wake     chan struct{}
}

func New(cfg Config) *Loop {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	mx := &sync.Mutex{}
	return &Loop{
		logger: cfg.Logger.With().Str("component", "loop").Logger(),
		clock:  c,
		mx:     mx,
		idle:   sync.NewCond(mx),
		wake:   make(chan struct{}, 1),
	}
}

// Clock returns the clock timers are scheduled on.
func (l *Loop) Clock() clock.Clock {
	return l.clock
}

// Post queues fn for execution on the loop. It never blocks. Callbacks posted
// after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mx.Lock()
	if l.closed {
		l.mx.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mx.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go runs work on its own goroutine and posts the continuation it returns
// (if any) back onto the loop. Flush waits for such work to finish.
func (l *Loop) Go(work func() func()) {
	l.mx.Lock()
	l.inflight++
	l.mx.Unlock()

	go func() {
		cont := work()
		if cont != nil {
			l.Post(cont)
		}
		l.mx.Lock()
		l.inflight--
		if l.inflight == 0 {
			l.idle.Broadcast()
		}
		l.mx.Unlock()
	}()
}

// Run executes posted callbacks until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) {
	l.mx.Lock()
	l.running = true
	l.mx.Unlock()
	defer func() {
		l.mx.Lock()
		l.running = false
		l.mx.Unlock()
		l.logger.Debug().Msg("loop stopped")
	}()

RunLoop:
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.exec(fn)
		}
		if l.isClosed() {
			break RunLoop
		}
		select {
		case <-ctx.Done():
			break RunLoop
		case <-l.wake:
		}
	}
}

// Flush blocks until the queue is empty and no work started with Go is in
// flight. When the loop is not running, queued callbacks are executed on the
// calling goroutine. Flush must not be called from a loop callback.
func (l *Loop) Flush() {
	for {
		l.mx.Lock()
		for l.inflight > 0 {
			l.idle.Wait()
		}
		running := l.running
		l.mx.Unlock()

		if running {
			done := make(chan struct{})
			l.Post(func() { close(done) })
			<-done
		} else {
			for {
				fn, ok := l.next()
				if !ok {
					break
				}
				l.exec(fn)
			}
		}

		l.mx.Lock()
		settled := len(l.queue) == 0 && l.inflight == 0
		closed := l.closed
		l.mx.Unlock()
		if settled || closed {
			return
		}
	}
}

// Close stops accepting callbacks and wakes Run so it can return.
func (l *Loop) Close() {
	l.mx.Lock()
	l.closed = true
	l.queue = nil
	l.mx.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) isClosed() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.closed
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("recovered from panic in loop callback")
		}
	}()
	fn()
}

// Timer is a loop-bound timer. Once Stop has been called on the loop, the
// callback never runs, even if the underlying clock already fired.
type Timer struct {
	mx       *sync.Mutex
	t        clock.Timer
	stopped  bool
	interval time.Duration
}

// After runs fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	tm := &Timer{mx: &sync.Mutex{}}
	tm.mx.Lock()
	tm.t = l.clock.AfterFunc(d, func() { l.fire(tm, fn) })
	tm.mx.Unlock()
	return tm
}

// Every runs fn on the loop each time d elapses, until stopped.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	tm := &Timer{mx: &sync.Mutex{}, interval: d}
	tm.mx.Lock()
	tm.t = l.clock.AfterFunc(d, func() { l.tick(tm, fn) })
	tm.mx.Unlock()
	return tm
}

func (l *Loop) fire(tm *Timer, fn func()) {
	l.Post(func() {
		if tm.isStopped() {
			return
		}
		tm.mx.Lock()
		tm.stopped = true
		tm.mx.Unlock()
		fn()
	})
}

func (l *Loop) tick(tm *Timer, fn func()) {
	tm.mx.Lock()
	if tm.stopped {
		tm.mx.Unlock()
		return
	}
	tm.t = l.clock.AfterFunc(tm.interval, func() { l.tick(tm, fn) })
	tm.mx.Unlock()

	l.Post(func() {
		if tm.isStopped() {
			return
		}
		fn()
	})
}

// Stop cancels the timer. It is safe on a nil or already stopped timer.
func (tm *Timer) Stop() {
	if tm == nil {
		return
	}
	tm.mx.Lock()
	defer tm.mx.Unlock()
	tm.stopped = true
	if tm.t != nil {
		tm.t.Stop()
	}
}

// Active reports whether the timer may still run its callback.
func (tm *Timer) Active() bool {
	return tm != nil && !tm.isStopped()
}

func (tm *Timer) isStopped() bool {
	tm.mx.Lock()
	defer tm.mx.Unlock()
	return tm.stopped
}
