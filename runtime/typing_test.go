package runtime

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func typingSignal(t *testing.T, id, name string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(event.TypingPayload{UserID: id, DisplayName: name})
	require.NoError(t, err)
	return raw
}

func newTyping(clock *fakeClock) (*TypingTracker, *recorder) {
	rec := &recorder{}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewTypingTracker(log, alice, 3*time.Second, rec, metrics).WithClock(clock.Now), rec
}

func TestTyping_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker, _ := newTyping(clock)
	start := clock.Now()

	// Given bob typed at t=0
	tracker.OnSignal(typingSignal(t, "bob", "Bob"))

	// Then he is still typing at t=2s
	req.Zero(tracker.Sweep(start.Add(2 * time.Second)))
	req.Len(tracker.Typists(), 1)

	// And gone at t=4s
	req.Equal(1, tracker.Sweep(start.Add(4*time.Second)))
	req.Empty(tracker.Typists())
}

func TestTyping_NewSignalRefreshes(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker, _ := newTyping(clock)
	start := clock.Now()

	tracker.OnSignal(typingSignal(t, "bob", "Bob"))
	clock.Advance(2 * time.Second)
	tracker.OnSignal(typingSignal(t, "bob", "Bob"))

	req.Zero(tracker.Sweep(start.Add(4 * time.Second)))
	req.Len(tracker.Typists(), 1)
}

func TestTyping_IgnoresSelfAndGarbage(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	tracker, rec := newTyping(clock)

	tracker.OnSignal(typingSignal(t, alice.ID, "Alice"))
	tracker.OnSignal(typingSignal(t, "", "Nobody"))
	tracker.OnSignal([]byte("{"))

	req.Empty(tracker.Typists())
	req.Zero(rec.changes)
}

func TestTyping_TypistsSortedByName(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	tracker, _ := newTyping(clock)

	tracker.OnSignal(typingSignal(t, "u2", "Zoe"))
	tracker.OnSignal(typingSignal(t, "u1", "Bob"))

	typists := tracker.Typists()
	req.Equal("Bob", typists[0].DisplayName)
	req.Equal("Zoe", typists[1].DisplayName)
}

func TestTyping_Notify(t *testing.T) {
	req := require.New(t)
	clock := &fakeClock{now: time.Now()}
	tracker, _ := newTyping(clock)
	handle := &fakeHandle{room: domain.DefaultRoom}

	req.ErrorIs(tracker.Notify(), errors.ErrNotSubscribed)

	tracker.Bind(handle)
	tracker.WithLimiter(rate.NewLimiter(rate.Every(time.Second), 1))

	// When three keystrokes happen within the same instant
	req.NoError(tracker.Notify())
	req.NoError(tracker.Notify())
	req.NoError(tracker.Notify())

	// Then one signal is sent
	req.Len(handle.sent, 1)
	req.Equal(event.TypingPayload{UserID: alice.ID, DisplayName: alice.DisplayName}, handle.sent[0])

	clock.Advance(time.Second)
	req.NoError(tracker.Notify())
	req.Len(handle.sent, 2)
}
