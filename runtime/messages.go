package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/projection"
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Censor masks forbidden words of a displayed body.
type Censor interface {
	Censor(content string) (string, []string)
}

// MessageStore keeps the visible timeline of the active room consistent with
// the backing store, from the initial load and the record events of the channel.
type MessageStore struct {
	log        *slog.Logger
	store      contract.Store
	async      Async
	listener   listener
	metrics    *observability.Metrics
	censor     Censor
	room       domain.RoomID
	user       domain.User
	retryDelay time.Duration
	clock      func() time.Time

	timeline  *projection.Timeline
	replyTo   *domain.Message
	loaded    bool
	reloadSeq uint64
	since     *changeLog

	// Ids deleted during this session. A completion that lands after the
	// delete must not bring the message back.
	deleted map[string]struct{}
}

// changeLog records the live changes applied while a snapshot query is in flight,
// so that the snapshot does not erase them.
type changeLog struct {
	inserted []domain.Message
	updated  []domain.Message
}

func NewMessageStore(log *slog.Logger, store contract.Store, room domain.RoomID, user domain.User,
	async Async, listener listener, metrics *observability.Metrics, retryDelay time.Duration) *MessageStore {
	return &MessageStore{
		log:        log.With("room", room),
		store:      store,
		async:      async,
		listener:   listener,
		metrics:    metrics,
		room:       room,
		user:       user,
		retryDelay: retryDelay,
		clock:      time.Now,
		timeline:   projection.NewTimeline(),
		deleted:    make(map[string]struct{}),
	}
}

// WithCensor masks displayed bodies with censor.
func (s *MessageStore) WithCensor(censor Censor) *MessageStore {
	s.censor = censor
	return s
}

func (s *MessageStore) WithClock(clock func() time.Time) *MessageStore {
	s.clock = clock
	return s
}

// LoadInitial replaces the timeline with the latest messages of the room.
func (s *MessageStore) LoadInitial(done func(err error)) {
	s.snapshot(func(err error) {
		if err == nil {
			s.loaded = true
		}
		done(err)
	})
}

// Reload re-fetches the whole window. It is the answer to any reaction change.
func (s *MessageStore) Reload(done func(err error)) {
	s.snapshot(done)
}

// OnReactionChanged reloads the room: reaction events do not carry enough
// context to patch a message in place.
func (s *MessageStore) OnReactionChanged() {
	s.snapshot(func(err error) {
		if err != nil {
			s.log.Warn("Reload after reaction change failed", "error", err)
		}
	})
}

// snapshot queries messages then their reactions and swaps them in. Only the
// latest issued snapshot is applied.
func (s *MessageStore) snapshot(done func(err error)) {
	s.reloadSeq++
	seq := s.reloadSeq
	s.since = &changeLog{}

	var messages []domain.Message
	s.async(func(ctx context.Context) error {
		var err error
		messages, err = s.fetchLatest(ctx)
		return err
	}, func(err error) {
		if seq != s.reloadSeq {
			s.log.Debug("Skipping superseded snapshot", "seq", seq, "latest", s.reloadSeq)
			done(err)
			return
		}
		if err != nil {
			s.since = nil
			done(err)
			return
		}
		s.apply(messages)
		s.listener.changed()
		done(nil)
	})
}

func (s *MessageStore) apply(messages []domain.Message) {
	log := s.since
	s.since = nil
	s.timeline.Replace(lo.Filter(messages, func(m domain.Message, _ int) bool {
		_, gone := s.deleted[m.ID]
		return !gone
	}))
	if log == nil {
		return
	}
	for _, m := range log.inserted {
		if _, gone := s.deleted[m.ID]; !gone {
			s.timeline.Merge(m)
		}
	}
	for _, m := range log.updated {
		s.timeline.Update(m)
	}
}

func (s *MessageStore) fetchLatest(ctx context.Context) ([]domain.Message, error) {
	messages, err := s.store.LatestMessages(ctx, s.room, domain.HistoryLimit)
	if err != nil {
		return nil, errors.Classify(err)
	}
	if len(messages) == 0 {
		return messages, nil
	}
	ids := lo.Map(messages, func(m domain.Message, _ int) string { return m.ID })
	reactions, err := s.store.ReactionsFor(ctx, ids)
	if err != nil {
		return nil, errors.Classify(err)
	}
	return attachReactions(messages, reactions), nil
}

func attachReactions(messages []domain.Message, reactions []domain.Reaction) []domain.Message {
	byMessage := lo.GroupBy(reactions, func(r domain.Reaction) string { return r.MessageID })
	for i := range messages {
		rs := byMessage[messages[i].ID]
		slices.SortFunc(rs, func(a, b domain.Reaction) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		messages[i].Reactions = rs
	}
	return messages
}

// OnRecordInserted merges a new message once its reactions are known.
// An id already displayed is a no-op, whatever the payload.
func (s *MessageStore) OnRecordInserted(record json.RawMessage) {
	m, ok := s.decode(record)
	if !ok || s.timeline.Has(m.ID) {
		return
	}
	if _, gone := s.deleted[m.ID]; gone {
		return
	}

	var reactions []domain.Reaction
	s.async(func(ctx context.Context) error {
		var err error
		reactions, err = s.store.ReactionsFor(ctx, []string{m.ID})
		return err
	}, func(err error) {
		if err != nil {
			s.log.Warn("Reactions lookup failed, merging without reactions", "id", m.ID, "error", err)
		} else {
			m.Reactions = attachReactions([]domain.Message{m}, reactions)[0].Reactions
		}
		s.merge(m)
	})
}

// OnRecordChanged replaces the fields of a displayed message.
func (s *MessageStore) OnRecordChanged(record json.RawMessage) {
	m, ok := s.decode(record)
	if !ok {
		return
	}
	if s.since != nil {
		s.since.updated = append(s.since.updated, m)
	}
	if s.timeline.Update(m) {
		s.listener.changed()
	}
}

// OnRecordDeleted removes id. A delete for an unknown id is tolerated.
func (s *MessageStore) OnRecordDeleted(id string) {
	s.deleted[id] = struct{}{}
	if s.replyTo != nil && s.replyTo.ID == id {
		s.replyTo = nil
	}
	if s.timeline.Remove(id) {
		s.listener.changed()
	}
}

func (s *MessageStore) merge(m domain.Message) {
	if _, gone := s.deleted[m.ID]; gone {
		s.log.Debug("Skipping merge of a deleted message", "id", m.ID)
		return
	}
	if s.since != nil {
		s.since.inserted = append(s.since.inserted, m)
	}
	if s.timeline.Merge(m) {
		s.listener.changed()
	}
}

func (s *MessageStore) decode(record json.RawMessage) (domain.Message, bool) {
	var m domain.Message
	if err := json.Unmarshal(record, &m); err != nil {
		s.log.Warn("Dropping undecodable message record", "error", err)
		return m, false
	}
	if m.ID == "" {
		s.log.Warn("Dropping message record without id")
		return m, false
	}
	if m.Room != "" && m.Room != s.room {
		s.log.Debug("Dropping message of another room", "id", m.ID, "other", m.Room)
		return m, false
	}
	return m, true
}

// Send validates content locally, then submits it with the reply snippet of
// the current reply target. A transient failure is retried once after the
// retry delay. reply is called from the submitting goroutine.
func (s *MessageStore) Send(content string, reply func(err error)) {
	body, err := domain.ValidateDraft(content)
	if err != nil {
		reply(err)
		return
	}

	message := domain.Message{
		ID:          uuid.NewString(),
		Room:        s.room,
		AuthorID:    s.user.ID,
		AuthorName:  s.user.DisplayName,
		AuthorColor: s.user.Color,
		Content:     body,
		CreatedAt:   s.clock().UTC(),
	}
	target := s.replyTo
	var fetchTarget string
	if target != nil {
		if local, ok := s.timeline.Get(target.ID); ok {
			message.Reply = local.ReplySnippet()
		} else {
			fetchTarget = target.ID
			message.Reply = target.ReplySnippet()
		}
	}

	var stored domain.Message
	s.async(func(ctx context.Context) error {
		// The submission outlives a room switch: the caller is owed the real outcome.
		ctx = context.WithoutCancel(ctx)
		if fetchTarget != "" {
			if found, err := s.store.MessagesByID(ctx, []string{fetchTarget}); err == nil && len(found) > 0 {
				message.Reply = found[0].ReplySnippet()
			}
		}
		var err error
		stored, err = s.submit(ctx, message)
		reply(err)
		return err
	}, func(err error) {
		if err != nil {
			s.metrics.SendFailed()
			s.listener.failed(err)
			return
		}
		if s.replyTo != nil && target != nil && s.replyTo.ID == target.ID {
			s.replyTo = nil
		}
		s.merge(stored)
	})
}

func (s *MessageStore) submit(ctx context.Context, message domain.Message) (domain.Message, error) {
	stored, err := s.store.InsertMessage(ctx, message)
	if err == nil {
		return stored, nil
	}
	if !errors.IsTransient(err) {
		return domain.Message{}, errors.Classify(err)
	}

	s.metrics.Retry()
	s.log.Warn("Message submission failed, retrying once", "id", message.ID, "error", err)
	select {
	case <-time.After(s.retryDelay):
	case <-ctx.Done():
		return domain.Message{}, errors.Classify(ctx.Err())
	}

	stored, err = s.store.InsertMessage(ctx, message)
	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, errors.ErrConflict):
		// The first attempt reached the store before failing.
		return message, nil
	default:
		return domain.Message{}, errors.Classify(err)
	}
}

// ToggleReaction removes the caller's emoji on the message, or adds it.
// The window is reloaded once the store accepted the change.
func (s *MessageStore) ToggleReaction(messageID, emoji string, done func(err error)) {
	if !lo.Contains(domain.ReactionEmojis, emoji) {
		done(errors.ErrValidation)
		return
	}
	m, ok := s.timeline.Get(messageID)
	if !ok {
		s.log.Debug("Reaction toggle on a vanished message", "id", messageID)
		done(nil)
		return
	}
	existing, remove := m.ReactionBy(s.user.ID, emoji)

	s.async(func(ctx context.Context) error {
		var err error
		if remove {
			err = s.store.DeleteReaction(ctx, existing.ID)
		} else {
			_, err = s.store.InsertReaction(ctx, domain.Reaction{
				ID:        uuid.NewString(),
				MessageID: messageID,
				UserID:    s.user.ID,
				Emoji:     emoji,
				CreatedAt: s.clock().UTC(),
			})
		}
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrConflict) {
			return nil
		}
		return errors.Classify(err)
	}, func(err error) {
		if err != nil {
			done(err)
			return
		}
		s.Reload(done)
	})
}

// DeleteMessage removes a message written by the current user.
func (s *MessageStore) DeleteMessage(id string, done func(err error)) {
	m, ok := s.timeline.Get(id)
	if !ok {
		done(nil)
		return
	}
	if m.AuthorID != s.user.ID {
		done(errors.ErrAuthorization)
		return
	}
	s.async(func(ctx context.Context) error {
		err := s.store.DeleteMessage(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return errors.Classify(err)
	}, func(err error) {
		if err == nil {
			s.OnRecordDeleted(id)
		}
		done(err)
	})
}

// ClearRoom deletes every message of the room then reloads it.
func (s *MessageStore) ClearRoom(done func(err error)) {
	s.async(func(ctx context.Context) error {
		return errors.Classify(s.store.DeleteRoomMessages(ctx, s.room))
	}, func(err error) {
		if err != nil {
			done(err)
			return
		}
		s.replyTo = nil
		s.Reload(done)
	})
}

// SetReplyTarget selects the message the next Send answers. An empty id clears it.
func (s *MessageStore) SetReplyTarget(id string) error {
	if id == "" {
		s.replyTo = nil
		s.listener.changed()
		return nil
	}
	m, ok := s.timeline.Get(id)
	if !ok {
		return errors.ErrNotFound
	}
	s.replyTo = &m
	s.listener.changed()
	return nil
}

func (s *MessageStore) ReplyTarget() *domain.Message {
	if s.replyTo == nil {
		return nil
	}
	m := s.display(*s.replyTo)
	return &m
}

func (s *MessageStore) Loaded() bool { return s.loaded }

// Messages returns the displayed timeline.
func (s *MessageStore) Messages() []domain.Message {
	messages := s.timeline.Messages()
	if s.censor == nil {
		return messages
	}
	for i := range messages {
		messages[i] = s.display(messages[i])
	}
	return messages
}

func (s *MessageStore) display(m domain.Message) domain.Message {
	if s.censor == nil {
		return m
	}
	censored, words := s.censor.Censor(m.Content)
	if len(words) > 0 {
		m.Content = censored
	}
	if m.Reply != nil {
		reply := *m.Reply
		reply.Content, _ = s.censor.Censor(reply.Content)
		m.Reply = &reply
	}
	return m
}
