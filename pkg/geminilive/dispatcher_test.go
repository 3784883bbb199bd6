package geminilive_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

func waitDone(t *testing.T, d *geminilive.Dispatcher) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(waitTimeout):
		t.Fatal("dispatcher did not drain")
	}
}

func TestDispatcherOrder(t *testing.T) {
	d := geminilive.NewDispatcher(nil)

	var mu sync.Mutex
	var got []string
	obs := func(name string) geminilive.Observer {
		return func(ev *geminilive.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+ev.Text)
			return nil
		}
	}
	d.Subscribe(geminilive.EventTextChunkReceived, obs("a"))
	d.SubscribeAll(obs("b"))
	d.Subscribe(geminilive.EventTextChunkReceived, obs("c"))
	d.Subscribe(geminilive.EventConnected, obs("never"))

	d.Emit(&geminilive.Event{Type: geminilive.EventTextChunkReceived, Text: "1"})
	d.Emit(
		&geminilive.Event{Type: geminilive.EventTextChunkReceived, Text: "2"},
		&geminilive.Event{Type: geminilive.EventTextChunkReceived, Text: "3"},
	)
	d.Close()
	waitDone(t, d)

	want := "a:1,b:1,c:1,a:2,b:2,c:2,a:3,b:3,c:3"
	if s := strings.Join(got, ","); s != want {
		t.Errorf("delivery = %s, want %s", s, want)
	}
}

func TestDispatcherObserverFailure(t *testing.T) {
	d := geminilive.NewDispatcher(nil)

	var mu sync.Mutex
	var got []string
	var errs []*geminilive.Event

	d.Subscribe(geminilive.EventConnected, func(*geminilive.Event) error {
		return errors.New("boom")
	})
	d.Subscribe(geminilive.EventConnected, func(*geminilive.Event) error {
		panic("kaboom")
	})
	d.Subscribe(geminilive.EventConnected, func(*geminilive.Event) error {
		mu.Lock()
		got = append(got, "third")
		mu.Unlock()
		return nil
	})
	d.Subscribe(geminilive.EventErrorOccurred, func(ev *geminilive.Event) error {
		mu.Lock()
		errs = append(errs, ev)
		mu.Unlock()
		// A failing error observer is only logged.
		return errors.New("error observer failed too")
	})

	d.Emit(&geminilive.Event{Type: geminilive.EventConnected, SessionID: "s1"})
	d.Close()
	waitDone(t, d)

	if len(got) != 1 {
		t.Errorf("third observer ran %d times, want 1", len(got))
	}
	if len(errs) != 2 {
		t.Fatalf("error events = %d, want 2", len(errs))
	}
	if !strings.Contains(errs[0].Message, "boom") || !strings.Contains(errs[1].Message, "kaboom") {
		t.Errorf("error messages = %q, %q", errs[0].Message, errs[1].Message)
	}
	if errs[0].SessionID != "s1" {
		t.Errorf("error SessionID = %q, want s1", errs[0].SessionID)
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := geminilive.NewDispatcher(nil)
	n := 0
	unsub := d.SubscribeAll(func(*geminilive.Event) error {
		n++
		return nil
	})
	d.Emit(&geminilive.Event{Type: geminilive.EventConnected})
	unsub()
	unsub()
	d.Emit(&geminilive.Event{Type: geminilive.EventConnected})
	d.Close()
	waitDone(t, d)

	// The first event may be delivered before or after unsubscribe.
	if n > 1 {
		t.Errorf("observer ran %d times, want at most 1", n)
	}
}

func TestDispatcherEmitNeverBlocks(t *testing.T) {
	d := geminilive.NewDispatcher(nil)
	release := make(chan struct{})
	var count int
	d.SubscribeAll(func(*geminilive.Event) error {
		<-release
		count++
		return nil
	})

	done := make(chan struct{})
	go func() {
		for range 1000 {
			d.Emit(&geminilive.Event{Type: geminilive.EventMessageReceived})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Emit blocked on a slow observer")
	}

	close(release)
	d.Close()
	waitDone(t, d)
	if count != 1000 {
		t.Errorf("delivered %d events, want 1000", count)
	}
}

func TestDispatcherCloseFromObserver(t *testing.T) {
	d := geminilive.NewDispatcher(nil)
	d.SubscribeAll(func(ev *geminilive.Event) error {
		d.Close()
		return nil
	})
	d.Emit(&geminilive.Event{Type: geminilive.EventDisconnected})
	waitDone(t, d)

	// Dropped after close.
	d.Emit(&geminilive.Event{Type: geminilive.EventDisconnected})
}

func TestDispatcherStampsTime(t *testing.T) {
	d := geminilive.NewDispatcher(nil)
	var at time.Time
	d.SubscribeAll(func(ev *geminilive.Event) error {
		at = ev.Time
		return nil
	})
	before := time.Now()
	d.Emit(&geminilive.Event{Type: geminilive.EventConnected})
	d.Close()
	waitDone(t, d)
	if at.Before(before) {
		t.Errorf("Time = %v, want >= %v", at, before)
	}
}
