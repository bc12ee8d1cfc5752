package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"context"
	"fmt"
	"slices"

	"golang.org/x/time/rate"
)

func (c *Controller) onAuth(evt contract.AuthEvent) {
	switch evt.Kind {
	case contract.SignedIn:
		if c.signedIn && c.user.ID == evt.User.ID {
			c.log.Debug("Already signed in", "user", evt.User.ID)
			return
		}
		c.signIn(evt.User)
	case contract.SignedOut:
		c.signOut()
	}
}

// signIn refreshes the profile of user then enters the last room, or the
// default one. The token claims are kept when the profile is unavailable.
func (c *Controller) signIn(user domain.User) {
	c.teardown()
	if c.user.ID != user.ID {
		c.room = ""
		c.previous, c.previousRoom = nil, ""
	}
	if c.room == "" {
		c.room = domain.DefaultRoom
	}
	c.user = user
	c.signedIn = true
	c.phase = domain.Authenticating
	c.err = nil
	c.dirty = true
	c.log.Info("Signed in", "user", user.ID)

	async, _, _ := c.begin()
	var profiles map[string]domain.Profile
	async(func(ctx context.Context) error {
		var err error
		profiles, err = c.profiles.Profiles(ctx, []string{user.ID})
		return err
	}, func(err error) {
		if err != nil {
			c.log.Warn("Profile refresh failed, using session claims", "user", user.ID, "error", err)
		} else if profile, ok := profiles[user.ID]; ok {
			c.user = c.user.WithProfile(profile)
		}
		c.enterRoom(c.room)
	})
}

func (c *Controller) signOut() {
	c.teardown()
	c.log.Info("Signed out", "user", c.user.ID)
	c.user = domain.User{}
	c.signedIn = false
	c.phase = domain.Idle
	c.room = ""
	c.previous, c.previousRoom = nil, ""
	c.err = nil
	c.dirty = true
}

// enterRoom rebuilds the whole session for room: one handle, one store, one
// tracker of each kind. Nothing of the previous room survives but its
// displayed messages, until the new window is loaded.
func (c *Controller) enterRoom(room domain.RoomID) {
	c.teardown()
	c.metrics.Switched()
	c.room = room
	c.phase = domain.Loading
	c.status = domain.StatusConnecting
	c.err = nil
	c.dirty = true

	async, ctx, gen := c.begin()
	log := c.log.With("room", room)
	c.messages = NewMessageStore(log, c.store, room, c.user, async, c, c.metrics, c.cfg.SendRetryDelay).
		WithClock(c.clock)
	if c.censor != nil {
		c.messages.WithCensor(c.censor)
	}
	c.presence = NewPresenceTracker(log, c.profiles, c.user, async, c, c.metrics).WithClock(c.clock)
	c.typing = NewTypingTracker(log, c.user, c.cfg.TypingTTL, c, c.metrics).WithClock(c.clock)
	if c.cfg.TypingRate > 0 {
		c.typing.WithLimiter(rate.NewLimiter(c.cfg.TypingRate, max(1, c.cfg.TypingBurst)))
	}

	log.Info("Entering room", "user", c.user.ID)
	c.messages.LoadInitial(func(err error) {
		if err != nil {
			log.Error("Initial load failed", "error", err)
			c.failed(err)
			return
		}
		c.maybeActivate()
	})
	c.openChannel(ctx, gen, room)
}

// openChannel subscribes to room off the loop. A handle opened for a room
// that is not active anymore is closed right away.
// Opens of the same room are chained: each waits until the previous one has
// returned and its handle, if stale, is closed.
func (c *Controller) openChannel(ctx context.Context, gen uint64, room domain.RoomID) {
	key := c.user.ID
	previous := c.opening[room]
	settled := make(chan struct{})
	c.opening[room] = settled
	go func() {
		if previous != nil {
			<-previous
		}
		if ctx.Err() != nil {
			close(settled)
			return
		}
		handle, err := c.transport.Open(ctx, room, key)
		posted := c.post(ctx, func() {
			defer close(settled)
			if c.opening[room] == settled {
				delete(c.opening, room)
			}
			if gen != c.generation {
				c.metrics.Stale()
				if handle != nil {
					_ = handle.Close()
				}
				return
			}
			if err != nil {
				c.log.Error("Opening channel failed", "room", room, "error", err)
				c.status = domain.StatusError
				c.failed(errors.Classify(err))
				return
			}
			c.handle = handle
			c.events = handle.Events()
			c.presence.Bind(handle)
			c.typing.Bind(handle)
		})
		if !posted {
			if handle != nil {
				_ = handle.Close()
			}
			close(settled)
		}
	}()
}

// begin opens a new generation and returns the async runner bound to it.
func (c *Controller) begin() (Async, context.Context, uint64) {
	ctx, cancel := context.WithCancel(c.loopCtx)
	c.cancelRoom = cancel
	gen := c.generation
	return c.roomAsync(ctx, gen), ctx, gen
}

// roomAsync runs work in its own goroutine and applies the result on the loop
// only if gen is still the current generation.
func (c *Controller) roomAsync(ctx context.Context, gen uint64) Async {
	return func(work func(ctx context.Context) error, apply func(err error)) {
		go func() {
			err := work(ctx)
			posted := c.post(ctx, func() {
				if gen != c.generation {
					c.metrics.Stale()
					c.log.Debug("Dropping stale completion", "generation", gen, "current", c.generation)
					return
				}
				apply(err)
			})
			if !posted {
				c.metrics.Stale()
			}
		}()
	}
}

// teardown invalidates every in-flight completion and releases the room.
func (c *Controller) teardown() {
	c.generation++
	if c.cancelRoom != nil {
		c.cancelRoom()
		c.cancelRoom = nil
	}
	if c.handle != nil {
		if c.presence != nil {
			c.presence.Leave()
		}
		if err := c.handle.Close(); err != nil {
			c.log.Debug("Closing channel failed", "room", c.room, "error", err)
		}
		c.handle = nil
		c.events = nil
	}
	for id, reply := range c.replies {
		delete(c.replies, id)
		reply(errors.ErrSuperseded)
	}
	if c.messages != nil && c.messages.Loaded() {
		c.previous = c.messages.Messages()
		c.previousRoom = c.room
	}
	c.messages, c.presence, c.typing = nil, nil, nil
	c.status = ""
	c.announced = false
}

// shutdown runs when the loop exits. The room is remembered for the next run.
func (c *Controller) shutdown() {
	c.teardown()
	c.signedIn = false
	c.phase = domain.Idle
	c.dirty = true
	c.flush()
}

func (c *Controller) onEvent(evt event.DomainEvent) {
	if evt.RoomID() != c.room {
		c.metrics.Stale()
		c.log.Debug("Dropping event of another room", "kind", event.Kind(evt), "other", evt.RoomID())
		return
	}
	c.metrics.Event(event.Kind(evt))

	switch e := evt.(type) {
	case event.StatusChanged:
		c.onStatus(e)
	case event.RecordInserted:
		if e.Table == event.TableReactions {
			c.messages.OnReactionChanged()
			return
		}
		c.messages.OnRecordInserted(e.Record)
	case event.RecordChanged:
		if e.Table == event.TableReactions {
			c.messages.OnReactionChanged()
			return
		}
		c.messages.OnRecordChanged(e.Record)
	case event.RecordDeleted:
		if e.Table == event.TableReactions {
			c.messages.OnReactionChanged()
			return
		}
		c.messages.OnRecordDeleted(e.ID)
	case event.PresenceSynced:
		c.presence.OnSync(e.Roster)
	case event.BroadcastReceived:
		if e.Kind != event.BroadcastTyping {
			c.log.Debug("Ignoring broadcast", "kind", e.Kind)
			return
		}
		c.typing.OnSignal(e.Payload)
	default:
		c.log.Debug("Ignoring unknown event", "kind", event.Kind(evt))
	}
}

func (c *Controller) onStatus(e event.StatusChanged) {
	previous := c.status
	c.status = e.Status
	c.dirty = true

	switch {
	case e.Status == domain.StatusSubscribed:
		if previous == domain.StatusSubscribed && c.announced {
			return
		}
		if err := c.presence.Announce(); err != nil {
			c.failed(err)
			return
		}
		c.announced = true
		c.maybeActivate()
	case e.Status.Failed():
		c.announced = false
		err := e.Err
		if err == nil {
			err = fmt.Errorf("channel %s", e.Status)
		}
		c.log.Warn("Channel failed, waiting for an explicit retry", "room", c.room, "status", e.Status, "error", err)
		c.failed(errors.Classify(err))
	case e.Status == domain.StatusClosed:
		c.announced = false
	}
}

// onHandleClosed handles a channel that ended without notice.
func (c *Controller) onHandleClosed() {
	c.events = nil
	c.announced = false
	if c.status != domain.StatusClosed {
		c.status = domain.StatusClosed
		c.failed(fmt.Errorf("%w: channel closed", errors.ErrTransientTransport))
	}
	c.dirty = true
}

// maybeActivate enters Active once the window is loaded and the local user is
// announced on a subscribed channel.
func (c *Controller) maybeActivate() {
	if c.phase != domain.Loading || c.messages == nil || !c.messages.Loaded() {
		return
	}
	if c.status != domain.StatusSubscribed || !c.announced {
		return
	}
	c.phase = domain.Active
	c.previous, c.previousRoom = nil, ""
	c.err = nil
	c.dirty = true
	c.log.Info("Room active", "room", c.room)
}

func (c *Controller) changed() {
	c.dirty = true
}

func (c *Controller) failed(err error) {
	c.err = err
	c.dirty = true
	c.fanout.Notify(domain.Notification{Kind: domain.Failure, Room: c.room, Err: err})
}

func (c *Controller) joined(entry domain.PresenceEntry) {
	c.fanout.Notify(domain.Notification{Kind: domain.UserJoined, Room: c.room, User: entry})
}

func (c *Controller) snapshot() domain.State {
	state := domain.State{
		User:             c.user,
		Room:             c.room,
		Phase:            c.phase,
		ConnectionStatus: c.status,
		Err:              c.err,
	}
	if c.messages != nil && c.messages.Loaded() {
		state.Messages = c.messages.Messages()
		state.MessagesRoom = c.room
		state.ReplyTo = c.messages.ReplyTarget()
	} else {
		state.Messages = slices.Clone(c.previous)
		state.MessagesRoom = c.previousRoom
	}
	if c.presence != nil {
		state.OnlineUsers = c.presence.Others()
		state.OnlineCount = c.presence.Count()
	}
	if c.typing != nil {
		state.TypingUsers = c.typing.Typists()
	}
	return state
}

// flush publishes the state if anything changed since the last publication.
func (c *Controller) flush() {
	if !c.dirty {
		return
	}
	c.dirty = false
	state := c.snapshot()
	c.metrics.Online(state.OnlineCount)
	c.fanout.Publish(state)
}
