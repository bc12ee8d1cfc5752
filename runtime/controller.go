package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/runtime/workers"
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the session engine.
type Config struct {
	BufferSize     int
	TypingTTL      time.Duration
	SweepInterval  time.Duration
	SendRetryDelay time.Duration
	// TypingRate caps outgoing typing signals per second. Zero disables the cap.
	TypingRate  rate.Limit
	TypingBurst int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		TypingTTL:      3 * time.Second,
		SweepInterval:  time.Second,
		SendRetryDelay: time.Second,
	}
}

// Controller owns the room session: who is signed in, which room is active,
// and the channel handle and trackers of that room.
// All session state lives on the goroutine running Run; the exported methods
// post closures to it and wait for their answer.
type Controller struct {
	log         *slog.Logger
	cfg         Config
	auth        contract.AuthProvider
	transport   contract.Transport
	store       contract.Store
	profiles    contract.ProfileLookup
	joinedRooms contract.JoinedRooms
	fanout      *workers.StateFanout
	metrics     *observability.Metrics
	censor      Censor
	clock       func() time.Time

	inbox    chan func()
	commands chan func()

	// Loop-owned state.
	loopCtx      context.Context
	user         domain.User
	signedIn     bool
	phase        domain.Phase
	room         domain.RoomID
	generation   uint64
	cancelRoom   context.CancelFunc
	handle       contract.Handle
	events       <-chan event.DomainEvent
	status       domain.ConnectionStatus
	messages     *MessageStore
	presence     *PresenceTracker
	typing       *TypingTracker
	announced    bool
	previous     []domain.Message
	previousRoom domain.RoomID
	err          error
	dirty        bool
	replies      map[uint64]func(error)
	nextReply    uint64
	opening      map[domain.RoomID]chan struct{}
}

func NewController(log *slog.Logger, cfg Config, auth contract.AuthProvider, transport contract.Transport,
	store contract.Store, profiles contract.ProfileLookup, joined contract.JoinedRooms,
	metrics *observability.Metrics) *Controller {
	return &Controller{
		log:         log,
		cfg:         cfg,
		auth:        auth,
		transport:   transport,
		store:       store,
		profiles:    profiles,
		joinedRooms: joined,
		fanout:      workers.NewStateFanout(log),
		metrics:     metrics,
		clock:       time.Now,
		inbox:       make(chan func(), cfg.BufferSize),
		commands:    make(chan func(), cfg.BufferSize),
		replies:     make(map[uint64]func(error)),
		opening:     make(map[domain.RoomID]chan struct{}),
	}
}

// WithCensor masks forbidden words in displayed messages.
func (c *Controller) WithCensor(censor Censor) *Controller {
	c.censor = censor
	return c
}

// WithClock replaces the wall clock, for tests. Call it before Run.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// Workers returns what must run under supervision for the controller to work.
func (c *Controller) Workers() []contract.Worker {
	return []contract.Worker{c, c.fanout}
}

// Channels lists the internal queues of the controller for capacity sampling.
func (c *Controller) Channels() []workers.NamedChannel {
	return []workers.NamedChannel{
		{Name: "controller_inbox", Channel: c.inbox},
		{Name: "controller_commands", Channel: c.commands},
	}
}

// Subscribe registers sink for every state change and notification.
// The returned function unsubscribes.
func (c *Controller) Subscribe(sink contract.StateSink) func() {
	return c.fanout.Subscribe(sink)
}

// Run is the event loop. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.loopCtx = ctx
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	defer c.shutdown()

	authEvents := c.auth.Events()
	if user, ok := c.auth.Current(); ok {
		c.signIn(user)
	}
	c.flush()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Context done, stopping room session")
			return nil
		case evt, ok := <-c.events:
			if !ok {
				c.onHandleClosed()
				break
			}
			c.onEvent(evt)
		case fn := <-c.inbox:
			fn()
		case fn := <-c.commands:
			fn()
		case evt, ok := <-authEvents:
			if !ok {
				authEvents = nil
				break
			}
			c.onAuth(evt)
		case <-ticker.C:
			if c.typing != nil {
				c.typing.Sweep(c.clock())
			}
		}
		c.flush()
	}
}

// post hands fn to the loop unless ctx is done first.
func (c *Controller) post(ctx context.Context, fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// call runs fn on the loop and waits for the reply it is given.
func (c *Controller) call(ctx context.Context, fn func(reply func(error))) error {
	answer := make(chan error, 1)
	reply := func(err error) {
		select {
		case answer <- err:
		default:
		}
	}
	select {
	case c.commands <- func() { fn(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-answer:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hold registers a reply answered later by a completion of the active room.
// A room change answers it with errors.ErrSuperseded instead.
func (c *Controller) hold(reply func(error)) func(error) {
	id := c.nextReply
	c.nextReply++
	c.replies[id] = reply
	return func(err error) {
		if r, ok := c.replies[id]; ok {
			delete(c.replies, id)
			r(err)
		}
	}
}

// inRoom runs fn on the loop when a room is entered.
func (c *Controller) inRoom(ctx context.Context, fn func(reply func(error))) error {
	return c.call(ctx, func(reply func(error)) {
		if !c.signedIn {
			reply(errors.ErrNotAuthenticated)
			return
		}
		if c.messages == nil {
			reply(errors.ErrNotSubscribed)
			return
		}
		fn(reply)
	})
}

// State returns the current snapshot.
func (c *Controller) State(ctx context.Context) (domain.State, error) {
	var state domain.State
	err := c.call(ctx, func(reply func(error)) {
		state = c.snapshot()
		reply(nil)
	})
	return state, err
}

// SwitchRoom leaves the active room and starts loading room.
// Private rooms must have been joined first.
func (c *Controller) SwitchRoom(ctx context.Context, room domain.RoomID) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	if !room.IsFixed() {
		joined, err := c.joinedRooms.List(user.ID)
		if err != nil {
			return errors.Classify(err)
		}
		if !containsRoom(joined, room) {
			return errors.ErrAuthorization
		}
	}
	return c.call(ctx, func(reply func(error)) {
		if !c.signedIn {
			reply(errors.ErrNotAuthenticated)
			return
		}
		if c.phase == domain.Authenticating {
			// Entered once the profile is resolved
			c.room = room
			reply(nil)
			return
		}
		if room == c.room {
			reply(nil)
			return
		}
		c.enterRoom(room)
		reply(nil)
	})
}

// SendMessage submits content to the active room. The answer reflects the
// store outcome even when the room changed in between.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	return c.inRoom(ctx, func(reply func(error)) {
		c.messages.Send(content, reply)
	})
}

// NotifyTyping tells the room the local user is typing. Failures are silent.
func (c *Controller) NotifyTyping(ctx context.Context) error {
	return c.inRoom(ctx, func(reply func(error)) {
		if err := c.typing.Notify(); err != nil {
			c.log.Debug("Typing notification skipped", "error", err)
		}
		reply(nil)
	})
}

func (c *Controller) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	return c.inRoom(ctx, func(reply func(error)) {
		c.messages.ToggleReaction(messageID, emoji, c.hold(reply))
	})
}

// DeleteMessage removes one of the local user's messages.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string) error {
	return c.inRoom(ctx, func(reply func(error)) {
		c.messages.DeleteMessage(messageID, c.hold(reply))
	})
}

// ClearRoom deletes every message of the active room.
func (c *Controller) ClearRoom(ctx context.Context) error {
	return c.inRoom(ctx, func(reply func(error)) {
		c.messages.ClearRoom(c.hold(reply))
	})
}

// SetReplyTarget selects the message answered by the next send. An empty id clears it.
func (c *Controller) SetReplyTarget(ctx context.Context, messageID string) error {
	return c.inRoom(ctx, func(reply func(error)) {
		reply(c.messages.SetReplyTarget(messageID))
	})
}

// ChangeAvatar persists the avatar style and re-announces presence with it.
func (c *Controller) ChangeAvatar(ctx context.Context, style string) error {
	return c.inRoom(ctx, func(reply func(error)) {
		done := c.hold(reply)
		c.presence.ChangeAvatar(style, func(err error) {
			if err == nil {
				c.user.AvatarStyle = style
				c.dirty = true
			}
			done(err)
		})
	})
}

// Refresh reloads the message window of the active room.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.inRoom(ctx, func(reply func(error)) {
		c.messages.Reload(c.hold(reply))
	})
}

// Retry rebuilds the subscription of the active room. It is the only way out
// of a failed channel: the controller never resubscribes on its own.
func (c *Controller) Retry(ctx context.Context) error {
	return c.call(ctx, func(reply func(error)) {
		if !c.signedIn {
			reply(errors.ErrNotAuthenticated)
			return
		}
		room := c.room
		if room == "" {
			room = domain.DefaultRoom
		}
		c.enterRoom(room)
		reply(nil)
	})
}

// DismissError clears the error shown with the state.
func (c *Controller) DismissError(ctx context.Context) error {
	return c.call(ctx, func(reply func(error)) {
		c.err = nil
		c.dirty = true
		reply(nil)
	})
}

func (c *Controller) currentUser(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := c.call(ctx, func(reply func(error)) {
		if !c.signedIn {
			reply(errors.ErrNotAuthenticated)
			return
		}
		user = c.user
		reply(nil)
	})
	return user, err
}
