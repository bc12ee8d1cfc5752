package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syncAsync applies every completion immediately.
func syncAsync(work func(ctx context.Context) error, apply func(err error)) {
	apply(work(context.Background()))
}

// queuedAsync runs work immediately but holds the completions until released,
// in any order.
type queuedAsync struct {
	pending []func()
}

func (q *queuedAsync) run(work func(ctx context.Context) error, apply func(err error)) {
	err := work(context.Background())
	q.pending = append(q.pending, func() { apply(err) })
}

// release applies the i-th held completion.
func (q *queuedAsync) release(i int) {
	fn := q.pending[i]
	q.pending[i] = func() {}
	fn()
}

type recorder struct {
	changes int
	errs    []error
	joins   []domain.PresenceEntry
}

func (r *recorder) changed()                          { r.changes++ }
func (r *recorder) failed(err error)                  { r.errs = append(r.errs, err) }
func (r *recorder) joined(entry domain.PresenceEntry) { r.joins = append(r.joins, entry) }

func record(t *testing.T, m domain.Message) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHandle is a channel handle driven by the test.
type fakeHandle struct {
	room   domain.RoomID
	events chan event.DomainEvent

	mu        sync.Mutex
	tracked   []domain.PresenceEntry
	untracked int
	sent      []any
	closed    bool
}

func (h *fakeHandle) Room() domain.RoomID                { return h.room }
func (h *fakeHandle) Events() <-chan event.DomainEvent   { return h.events }
func (h *fakeHandle) emit(evt event.DomainEvent)         { h.events <- evt }
func (h *fakeHandle) subscribe()                         { h.emit(event.StatusChanged{Room: h.room, Status: domain.StatusSubscribed}) }
func (h *fakeHandle) status(s domain.ConnectionStatus, err error) {
	h.emit(event.StatusChanged{Room: h.room, Status: s, Err: err})
}

func (h *fakeHandle) Send(kind string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, payload)
	return nil
}

func (h *fakeHandle) Track(entry domain.PresenceEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracked = append(h.tracked, entry)
	return nil
}

func (h *fakeHandle) Untrack() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.untracked++
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) trackedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tracked)
}

// fakeTransport hands out fakeHandles and remembers them.
type fakeTransport struct {
	mu      sync.Mutex
	handles []*fakeHandle
	opened  chan *fakeHandle
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{opened: make(chan *fakeHandle, 16)}
}

func (f *fakeTransport) Open(_ context.Context, room domain.RoomID, _ string) (contract.Handle, error) {
	h := &fakeHandle{room: room, events: make(chan event.DomainEvent, 64)}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	f.opened <- h
	return h, nil
}

func (f *fakeTransport) next(t *testing.T) *fakeHandle {
	t.Helper()
	select {
	case h := <-f.opened:
		return h
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no channel opened")
		return nil
	}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}
