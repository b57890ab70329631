// Package events implements a broadcast bus for index lifecycle events,
// with an SSE endpoint for HTTP consumers.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/tessera-kb/tessera/internal/models"
)

// Bus fans index events out to any number of subscribers. Every subscriber
// sees every event; a slow subscriber drops events rather than blocking
// the producer.
//
// Concurrency model: a single internal goroutine owns the subscriber set.
// Public methods communicate with it through channels, so no mutexes are
// needed.
type Bus struct {
	subscribeCh   chan chan models.IndexEvent
	unsubscribeCh chan chan models.IndexEvent
	publishCh     chan models.IndexEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// subscriberBuffer is the per-subscriber channel capacity. Events beyond
// it are dropped for that subscriber.
const subscriberBuffer = 64

// NewBus creates a bus and starts its event loop.
func NewBus() *Bus {
	b := &Bus{
		subscribeCh:   make(chan chan models.IndexEvent),
		unsubscribeCh: make(chan chan models.IndexEvent),
		publishCh:     make(chan models.IndexEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)

	subscribers := make(map[chan models.IndexEvent]struct{})

	for {
		select {
		case <-b.stopCh:
			for ch := range subscribers {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			subscribers[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			for ch := range subscribers {
				select {
				case ch <- ev:
				default:
					// Subscriber buffer full; drop rather than block.
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(subscribers)
		}
	}
}

// Close stops the loop and closes all subscriber channels.
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new subscriber and returns its channel. The
// channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe() chan models.IndexEvent {
	ch := make(chan models.IndexEvent, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan models.IndexEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts an event to all subscribers. Never blocks on slow
// consumers; publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev models.IndexEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP streams index events to the client as Server-Sent Events.
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
