package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"
	"cmp"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"
)

// TypingTracker broadcasts local keystrokes and keeps who else is typing.
// Signals are never acknowledged: a missed one heals on the next keystroke or
// on expiry.
type TypingTracker struct {
	log      *slog.Logger
	listener listener
	metrics  *observability.Metrics
	clock    func() time.Time
	ttl      time.Duration
	limiter  *rate.Limiter

	self    domain.User
	handle  contract.Handle
	typists map[string]domain.TypingSignal
}

func NewTypingTracker(log *slog.Logger, self domain.User, ttl time.Duration,
	listener listener, metrics *observability.Metrics) *TypingTracker {
	return &TypingTracker{
		log:      log,
		listener: listener,
		metrics:  metrics,
		clock:    time.Now,
		ttl:      ttl,
		self:     self,
		typists:  make(map[string]domain.TypingSignal),
	}
}

func (t *TypingTracker) WithClock(clock func() time.Time) *TypingTracker {
	t.clock = clock
	return t
}

// WithLimiter throttles outgoing signals. Signals over the limit are skipped.
func (t *TypingTracker) WithLimiter(limiter *rate.Limiter) *TypingTracker {
	t.limiter = limiter
	return t
}

func (t *TypingTracker) Bind(handle contract.Handle) {
	t.handle = handle
}

// Notify broadcasts that the local user is typing.
func (t *TypingTracker) Notify() error {
	if t.handle == nil {
		return errors.ErrNotSubscribed
	}
	if t.limiter != nil && !t.limiter.AllowN(t.clock(), 1) {
		return nil
	}
	payload := event.TypingPayload{UserID: t.self.ID, DisplayName: t.self.DisplayName}
	if err := t.handle.Send(event.BroadcastTyping, payload); err != nil {
		t.log.Debug("Typing signal not sent", "error", err)
		return err
	}
	return nil
}

// OnSignal records a remote typing signal, stamped with the local receipt time.
func (t *TypingTracker) OnSignal(raw json.RawMessage) {
	var payload event.TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.log.Debug("Dropping undecodable typing signal", "error", err)
		return
	}
	if payload.UserID == "" || payload.UserID == t.self.ID {
		return
	}
	t.typists[payload.UserID] = domain.TypingSignal{
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		ReceivedAt:  t.clock(),
	}
	t.listener.changed()
}

// Sweep evicts the signals older than the TTL at now.
func (t *TypingTracker) Sweep(now time.Time) int {
	evicted := 0
	for id, signal := range t.typists {
		if now.Sub(signal.ReceivedAt) > t.ttl {
			delete(t.typists, id)
			evicted++
		}
	}
	if evicted > 0 {
		t.metrics.Evicted(evicted)
		t.listener.changed()
	}
	return evicted
}

// Typists returns the users currently typing, by name.
func (t *TypingTracker) Typists() []domain.TypingSignal {
	out := make([]domain.TypingSignal, 0, len(t.typists))
	for _, signal := range t.typists {
		out = append(out, signal)
	}
	slices.SortFunc(out, func(a, b domain.TypingSignal) int {
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}
