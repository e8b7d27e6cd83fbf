package cancel

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoSignals is returned by [Bridge.Install] when the bridge was built
	// without any signals to listen for.
	ErrNoSignals = errors.New("cancel: no signals to install")
	// ErrAlreadyInstalled is returned by a second [Bridge.Install].
	ErrAlreadyInstalled = errors.New("cancel: bridge already installed")
)

// ///////////////////////////////////////////////
// Bridge
// ///////////////////////////////////////////////

// Bridge maps OS signals onto a single [Event]. The Go runtime owns the real
// asynchronous handler and queues deliveries on a channel; the bridge
// goroutine turns each delivery into exactly one [Event.Post] and nothing else.
type Bridge struct {
	event *Event
	sigs  []os.Signal

	// notify and reset default to [signal.Notify] and [signal.Stop]; tests
	// replace them to feed deliveries without raising real signals.
	notify func(chan<- os.Signal, ...os.Signal)
	reset  func(chan<- os.Signal)

	ch        chan os.Signal
	done      chan struct{}
	installed atomic.Bool
	stopOnce  sync.Once

	// delivered counts signals forwarded to the event.
	delivered atomic.Uint64
}

// NewBridge creates a Bridge that posts ev for every signal in sigs.
// Use [DefaultSignals] for the platform's cancel set.
func NewBridge(ev *Event, sigs ...os.Signal) *Bridge {
	return &Bridge{
		event:  ev,
		sigs:   sigs,
		notify: signal.Notify,
		reset:  signal.Stop,
		// Buffered so a burst of deliveries is not dropped by the runtime
		// while the forwarder is descheduled.
		ch:   make(chan os.Signal, 8),
		done: make(chan struct{}),
	}
}

// Install subscribes to the bridge's signals and starts forwarding them.
// A failure here leaves the process without interrupt handling, so callers
// should treat it as fatal.
func (b *Bridge) Install() error {
	if len(b.sigs) == 0 {
		return ErrNoSignals
	}
	if !b.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	b.notify(b.ch, b.sigs...)
	go b.forward()
	return nil
}

// Stop unsubscribes from all signals and stops the forwarder. It is a no-op
// if the bridge was never installed, and safe to call more than once.
func (b *Bridge) Stop() {
	if !b.installed.Load() {
		return
	}
	b.stopOnce.Do(func() {
		b.reset(b.ch)
		close(b.done)
	})
}

// Delivered returns the number of signals forwarded so far.
func (b *Bridge) Delivered() uint64 {
	return b.delivered.Load()
}

// Signals returns the signals the bridge listens for.
func (b *Bridge) Signals() []os.Signal {
	return b.sigs
}

func (b *Bridge) forward() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ch:
			b.event.Post()
			b.delivered.Add(1)
		}
	}
}
