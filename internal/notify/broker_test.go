package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	b.Publish(Event{RunID: "r1", Type: EventItemStarted})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.RunID != "r1" || ev.Type != EventItemStarted {
				t.Errorf("subscriber %d: unexpected event %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestBroker_SlowSubscriberDropsItemEvents(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{RunID: "r1", Type: EventProgress, Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBroker_TerminalEventDelivered(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	// Fill the buffer, then publish the terminal event
	b.Publish(Event{RunID: "r1", Type: EventProgress})

	published := make(chan struct{})
	go func() {
		b.Publish(Event{RunID: "r1", Type: EventRunComplete})
		close(published)
	}()

	var got []EventType
	for ev := range ch {
		got = append(got, ev.Type)
		if ev.Type.IsTerminal() {
			break
		}
	}
	<-published

	if len(got) != 2 || got[1] != EventRunComplete {
		t.Errorf("expected progress then run_complete, got %v", got)
	}
}

func TestBroker_CancelReleasesPendingTerminal(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe(1)
	b.Publish(Event{Type: EventProgress})
	b.Publish(Event{Type: EventRunCancelled})

	cancel()
	cancel()

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("pending terminal delivery not released by unsubscribe")
	}
}

// within fails the test if fn does not return in d
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked", what)
	}
}

func TestBroker_StalledSubscriberIsolated(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	// Never read
	_, stalled := b.Subscribe(1)
	defer stalled()
	b.Publish(Event{RunID: "a", Type: EventProgress})

	within(t, 500*time.Millisecond, "terminal publish of another run", func() {
		b.Publish(Event{RunID: "b", Type: EventRunComplete})
	})

	var fresh <-chan Event
	var cancel func()
	within(t, 500*time.Millisecond, "new subscribe", func() {
		fresh, cancel = b.Subscribe(4)
	})
	defer cancel()

	within(t, 500*time.Millisecond, "progress publish of another run", func() {
		b.Publish(Event{RunID: "c", Type: EventProgress})
	})

	select {
	case ev := <-fresh:
		if ev.RunID != "c" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("new subscriber got nothing")
	}
}

func TestBroker_TerminalDroppedAfterWait(t *testing.T) {
	b := NewBroker().WithTerminalWait(20 * time.Millisecond)
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(Event{RunID: "r1", Type: EventProgress})
	b.Publish(Event{RunID: "r1", Type: EventRunComplete})

	within(t, time.Second, "close", b.Close)

	var got []EventType
	for ev := range ch {
		got = append(got, ev.Type)
	}
	if len(got) != 1 || got[0] != EventProgress {
		t.Errorf("expected the terminal event dropped, got %v", got)
	}
}

func TestBroker_SubscribeRun(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.SubscribeRun("r2", 4)
	defer cancel()

	b.Publish(Event{RunID: "r1", Type: EventProgress})
	b.Publish(Event{RunID: "r2", Type: EventProgress, Progress: 1})
	b.Publish(Event{RunID: "r1", Type: EventRunComplete})
	b.Publish(Event{RunID: "r2", Type: EventRunComplete})

	var got []Event
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 events, got %d", len(got))
		}
	}
	for _, ev := range got {
		if ev.RunID != "r2" {
			t.Errorf("unexpected event from another run: %+v", ev)
		}
	}
	if got[1].Type != EventRunComplete {
		t.Errorf("expected run_complete last, got %v", got[1].Type)
	}
}

func TestBroker_CloseDeliversPendingTerminal(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe(1)
	b.Publish(Event{RunID: "r1", Type: EventProgress})
	b.Publish(Event{RunID: "r1", Type: EventRunComplete})

	var got []EventType
	done := make(chan struct{})
	go func() {
		for ev := range ch {
			got = append(got, ev.Type)
		}
		close(done)
	}()

	within(t, time.Second, "close", b.Close)
	<-done

	if len(got) != 2 || got[1] != EventRunComplete {
		t.Errorf("expected progress then run_complete, got %v", got)
	}
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe(1)
	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed")
	}

	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return a closed channel")
	}

	b.Publish(Event{Type: EventRunComplete})
}

func TestOnce(t *testing.T) {
	var once Once
	if !once.First(Event{RunID: "r1", Type: EventProgress}) || !once.First(Event{RunID: "r1", Type: EventProgress}) {
		t.Error("item events always pass")
	}
	if !once.First(Event{RunID: "r1", Type: EventRunComplete}) {
		t.Error("first terminal event should pass")
	}
	if once.First(Event{RunID: "r1", Type: EventRunComplete}) {
		t.Error("duplicate terminal event should be filtered")
	}
	if !once.First(Event{RunID: "r2", Type: EventRunCancelled}) {
		t.Error("terminal event of another run should pass")
	}
}

func TestEvent_Fraction(t *testing.T) {
	if f := (Event{Progress: 1, Total: 4}).Fraction(); f != 0.25 {
		t.Errorf("expected 0.25, got %v", f)
	}
	if f := (Event{}).Fraction(); f != 1 {
		t.Errorf("expected 1 for empty run, got %v", f)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Notify(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func TestForward(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{RunID: "r1", Type: EventItemStarted}
	events <- Event{RunID: "r1", Type: EventProgress}
	events <- Event{RunID: "r1", Type: EventRunComplete}
	events <- Event{RunID: "r1", Type: EventRunComplete}
	close(events)

	sink := &recordingSink{}
	Forward(context.Background(), events, sink, false, nil)

	if len(sink.events) != 1 || sink.events[0].Type != EventRunComplete {
		t.Errorf("expected a single run_complete, got %+v", sink.events)
	}
}

func TestForward_IncludeItems(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{RunID: "r1", Type: EventItemStarted}
	events <- Event{RunID: "r1", Type: EventProgress}
	events <- Event{RunID: "r1", Type: EventRunCancelled}
	close(events)

	sink := &recordingSink{}
	Forward(context.Background(), events, sink, true, nil)

	if len(sink.events) != 3 {
		t.Errorf("expected 3 events, got %d", len(sink.events))
	}
}
