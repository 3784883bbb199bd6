package geminilive

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher fans events out to observers on its own goroutine.
//
// Emit never blocks: events are appended to an unbounded queue and delivered
// in emission order. Observers of one event run in subscription order. An
// observer failure is turned into an EventErrorOccurred event delivered right
// after the failing event; failures of error observers are only logged.
type Dispatcher struct {
	notify chan struct{}
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	queue  []*Event
	closed bool
	subs   []*subscription
	nextID uint64
}

type subscription struct {
	id  uint64
	typ EventType
	all bool
	fn  Observer
}

// NewDispatcher starts a dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run()
	return d
}

// Subscribe registers fn for events of type t and returns a function that
// removes it.
func (d *Dispatcher) Subscribe(t EventType, fn Observer) (unsubscribe func()) {
	return d.add(&subscription{typ: t, fn: fn})
}

// SubscribeAll registers fn for every event.
func (d *Dispatcher) SubscribeAll(fn Observer) (unsubscribe func()) {
	return d.add(&subscription{all: true, fn: fn})
}

func (d *Dispatcher) add(s *subscription) func() {
	d.mu.Lock()
	d.nextID++
	s.id = d.nextID
	d.subs = append(d.subs, s)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, sub := range d.subs {
				if sub.id == s.id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit queues events for delivery. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(events ...*Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		for _, ev := range events {
			d.logger.Debug("geminilive: dropping event after close", "type", ev.Type)
		}
		return
	}
	now := time.Now()
	for _, ev := range events {
		if ev.Time.IsZero() {
			ev.Time = now
		}
	}
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Close stops accepting events. Queued events are still delivered; Done is
// closed once the queue is drained. Close does not wait, so it is safe to
// call from an observer.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Done returns a channel closed after the last queued event is delivered.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.mu.Unlock()
			<-d.notify
			d.mu.Lock()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, ev := range batch {
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) observers(t EventType) []Observer {
	d.mu.Lock()
	defer d.mu.Unlock()
	var fns []Observer
	for _, s := range d.subs {
		if s.all || s.typ == t {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

func (d *Dispatcher) deliver(ev *Event) {
	var failures []*Event
	for _, fn := range d.observers(ev.Type) {
		err := callObserver(fn, ev)
		if err == nil {
			continue
		}
		if ev.Type == EventErrorOccurred {
			d.logger.Error("geminilive: error observer failed", "error", err, "event_message", ev.Message)
			continue
		}
		fe := errorEvent(fmt.Sprintf("observer of %s failed: %v", ev.Type, err), err)
		fe.SessionID = ev.SessionID
		fe.Time = time.Now()
		failures = append(failures, fe)
	}
	for _, fe := range failures {
		d.deliver(fe)
	}
}

func callObserver(fn Observer, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geminilive: observer panic: %v", r)
		}
	}()
	return fn(ev)
}
