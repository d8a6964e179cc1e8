package notify

import (
	"sync"
	"time"
)

// DefaultTerminalWait bounds how long a terminal event waits for room in a
// full subscriber buffer before it is dropped for that subscriber
const DefaultTerminalWait = 5 * time.Second

// Broker fans events out to subscribers over buffered channels.
//
// Publish never blocks. Item events are dropped for a subscriber whose
// buffer is full. Terminal events for a full subscriber are handed to a
// goroutine that waits up to the terminal wait for room, so a stalled
// observer delays only its own delivery.
type Broker struct {
	mu           sync.RWMutex
	subs         map[int]*subscription
	nextID       int
	closed       bool
	terminalWait time.Duration
	pending      sync.WaitGroup
}

type subscription struct {
	runID    string // Empty receives every run
	ch       chan Event
	done     chan struct{}
	doneOnce sync.Once

	mu     sync.RWMutex // Held for reading while sending on ch
	closed bool
}

func (s *subscription) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// close releases any pending send, then closes ch
func (s *subscription) close() {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *subscription) wants(ev Event) bool {
	return s.runID == "" || s.runID == ev.RunID
}

// offer tries a non-blocking send
func (s *subscription) offer(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// deliver waits up to wait for room in the buffer
func (s *subscription) deliver(ev Event, wait time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- ev:
	case <-s.done:
	case <-timer.C:
	}
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		subs:         make(map[int]*subscription),
		terminalWait: DefaultTerminalWait,
	}
}

// WithTerminalWait overrides DefaultTerminalWait
func (b *Broker) WithTerminalWait(d time.Duration) *Broker {
	if d > 0 {
		b.terminalWait = d
	}
	return b
}

// Subscribe registers an observer of every run. The returned cancel func
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	return b.subscribe("", buffer)
}

// SubscribeRun registers an observer of a single run
func (b *Broker) SubscribeRun(runID string, buffer int) (<-chan Event, func()) {
	return b.subscribe(runID, buffer)
}

func (b *Broker) subscribe(runID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	sub := &subscription{
		runID: runID,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		sub.close()

		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}

	return sub.ch, cancel
}

// Publish delivers ev to the subscribers that want it. The broker lock is
// only held while the subscriber list is copied.
func (b *Broker) Publish(ev Event) {
	terminal := ev.Type.IsTerminal()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(ev) {
			targets = append(targets, sub)
		}
	}
	if terminal {
		// Counted under the lock so Close can wait for every handoff
		b.pending.Add(len(targets))
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if sub.offer(ev) {
			if terminal {
				b.pending.Done()
			}
			continue
		}
		if !terminal {
			continue
		}
		go func(sub *subscription) {
			defer b.pending.Done()
			sub.deliver(ev, b.terminalWait)
		}(sub)
	}
}

// Close waits for terminal events still in flight, then unsubscribes
// everyone and closes their channels
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.pending.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
}

// Once filters duplicate terminal events so observers act on each run's
// completion exactly once. Non-terminal events always pass.
type Once struct {
	mu   sync.Mutex
	seen map[string]bool
}

// First reports whether ev should be acted on
func (o *Once) First(ev Event) bool {
	if !ev.Type.IsTerminal() {
		return true
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	if o.seen[ev.RunID] {
		return false
	}
	o.seen[ev.RunID] = true
	return true
}
