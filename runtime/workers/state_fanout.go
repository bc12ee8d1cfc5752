package workers

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"context"
	"log/slog"
	"slices"
	"sync"
)

// StateFanout hands the session state to every subscribed sink.
//
// Publish never blocks the event loop: only the latest state is kept, older
// unseen ones are dropped. Notifications are one-shot and are all delivered,
// in order, after the state they were raised with.
//
// StateFanout is safe for concurrent use by multiple goroutines.
type StateFanout struct {
	log    *slog.Logger
	mu     sync.Mutex
	sinks  map[int]contract.StateSink
	nextID int
	latest *domain.State
	dirty  bool
	notes  []domain.Notification
	signal chan struct{}
}

func NewStateFanout(log *slog.Logger) *StateFanout {
	return &StateFanout{
		log:    log,
		sinks:  make(map[int]contract.StateSink),
		signal: make(chan struct{}, 1),
	}
}

// Subscribe registers sink. The current state, if any, is delivered to it on
// the next round. The returned function unsubscribes.
func (f *StateFanout) Subscribe(sink contract.StateSink) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.sinks[id] = sink
	if f.latest != nil {
		f.dirty = true
	}
	f.mu.Unlock()
	f.wake()

	return func() {
		f.mu.Lock()
		delete(f.sinks, id)
		f.mu.Unlock()
	}
}

// Publish replaces the pending state.
func (f *StateFanout) Publish(state domain.State) {
	f.mu.Lock()
	f.latest = &state
	f.dirty = true
	f.mu.Unlock()
	f.wake()
}

// Notify queues a notification.
func (f *StateFanout) Notify(notification domain.Notification) {
	f.mu.Lock()
	f.notes = append(f.notes, notification)
	f.mu.Unlock()
	f.wake()
}

func (f *StateFanout) wake() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *StateFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-f.signal:
			f.Fanout()
		case <-ctx.Done():
			f.log.Debug("Context done, stopping state fanout")
			return nil
		}
	}
}

// Fanout delivers what is pending to every sink.
func (f *StateFanout) Fanout() {
	f.mu.Lock()
	var state *domain.State
	if f.dirty {
		state = f.latest
		f.dirty = false
	}
	notes := f.notes
	f.notes = nil
	sinks := make([]contract.StateSink, 0, len(f.sinks))
	ids := make([]int, 0, len(f.sinks))
	for id := range f.sinks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		sinks = append(sinks, f.sinks[id])
	}
	f.mu.Unlock()

	for _, sink := range sinks {
		if state != nil {
			sink.Consume(*state)
		}
		for _, n := range notes {
			sink.Notify(n)
		}
	}
}
