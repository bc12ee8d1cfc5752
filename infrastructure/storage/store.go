package storage

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Publisher receives every committed change, to be delivered as channel events.
type Publisher interface {
	Publish(evt event.DomainEvent)
}

// Store is the badger backed message store. It satisfies contract.Store and
// contract.ProfileLookup.
//
// Layout:
//
//	msg:{room}:{unix_nano_padded}:{id} -> message
//	msgidx:{id}                        -> primary message key
//	rx:{message_id}:{user_id}:{emoji}  -> reaction
//	rxid:{id}                          -> primary reaction key
//	room:{id}                          -> private room
//	profile:{user_id}                  -> profile
type Store struct {
	db        *badger.DB
	log       *slog.Logger
	publisher Publisher
	clock     func() time.Time
}

func NewStore(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log, clock: time.Now}
}

// WithPublisher makes the store emit a record event after each commit.
func (s *Store) WithPublisher(publisher Publisher) *Store {
	s.publisher = publisher
	return s
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Room, m.CreatedAt.UnixNano(), m.ID))
}

func messagePrefix(room domain.RoomID) []byte { return []byte(fmt.Sprintf("msg:%s:", room)) }

func messageIndexKey(id string) []byte { return []byte("msgidx:" + id) }

func reactionKey(r domain.Reaction) []byte {
	return []byte(fmt.Sprintf("rx:%s:%s:%s", r.MessageID, r.UserID, r.Emoji))
}

func reactionPrefix(messageID string) []byte { return []byte(fmt.Sprintf("rx:%s:", messageID)) }

func reactionIndexKey(id string) []byte { return []byte("rxid:" + id) }

func roomKey(id domain.RoomID) []byte { return []byte("room:" + string(id)) }

func profileKey(userID string) []byte { return []byte("profile:" + userID) }

// InsertMessage stores m. An id already stored is a conflict.
func (s *Store) InsertMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if m.Room == "" {
		return domain.Message{}, fmt.Errorf("%w: message without room", errors.ErrValidation)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock().UTC()
	}
	m.Reactions = nil

	data, err := json.Marshal(m)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal failed: %w", err)
	}
	key := messageKey(m)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageIndexKey(m.ID)); err == nil {
			return fmt.Errorf("%w: message %s already exists", errors.ErrConflict, m.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(m.ID), key)
	})
	if err != nil {
		return domain.Message{}, translate(err)
	}
	s.publish(event.RecordInserted{Room: m.Room, Table: event.TableMessages, Record: data})
	return m, nil
}

// DeleteMessage removes a message and its reactions.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var room domain.RoomID
	err := s.db.Update(func(txn *badger.Txn) error {
		m, key, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		room = m.Room
		if err := deleteReactions(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIndexKey(id))
	})
	if err != nil {
		return translate(err)
	}
	s.publish(event.RecordDeleted{Room: room, Table: event.TableMessages, ID: id})
	return nil
}

// DeleteRoomMessages removes every message of room. It is not atomic across
// large rooms: a failure may leave part of the room in place.
func (s *Store) DeleteRoomMessages(ctx context.Context, room domain.RoomID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var m domain.Message
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				ids = append(ids, m.ID)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}

	for _, id := range ids {
		if err := s.DeleteMessage(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	s.log.Debug("Room cleared", "room", room, "deleted", len(ids))
	return nil
}

// LatestMessages returns at most limit messages of room, newest first.
func (s *Store) LatestMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts after the newest possible key of the room
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var m domain.Message
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &m)
			}); err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return messages, nil
}

// MessagesByID returns the stored messages among ids. Unknown ids are skipped.
func (s *Store) MessagesByID(ctx context.Context, ids []string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			m, _, err := getMessage(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return messages, nil
}

// ReactionsFor returns every reaction put on the given messages.
func (s *Store) ReactionsFor(ctx context.Context, messageIDs []string) ([]domain.Reaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var reactions []domain.Reaction
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range messageIDs {
			prefix := reactionPrefix(id)
			options := badger.DefaultIteratorOptions
			options.Prefix = prefix
			it := txn.NewIterator(options)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var r domain.Reaction
				if err := it.Item().Value(func(value []byte) error {
					return json.Unmarshal(value, &r)
				}); err != nil {
					it.Close()
					return err
				}
				reactions = append(reactions, r)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return reactions, nil
}

// InsertReaction stores r. The same (message, user, emoji) twice is a conflict,
// a reaction on a missing message is not found.
func (s *Store) InsertReaction(ctx context.Context, r domain.Reaction) (domain.Reaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reaction{}, err
	}
	if r.MessageID == "" || r.UserID == "" || r.Emoji == "" {
		return domain.Reaction{}, fmt.Errorf("%w: incomplete reaction", errors.ErrValidation)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return domain.Reaction{}, fmt.Errorf("marshal failed: %w", err)
	}
	var room domain.RoomID
	err = s.db.Update(func(txn *badger.Txn) error {
		m, _, err := getMessage(txn, r.MessageID)
		if err != nil {
			return err
		}
		room = m.Room
		key := reactionKey(r)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: reaction %s already put", errors.ErrConflict, r.Emoji)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(reactionIndexKey(r.ID), key)
	})
	if err != nil {
		return domain.Reaction{}, translate(err)
	}
	s.publish(event.RecordInserted{Room: room, Table: event.TableReactions, Record: data})
	return r, nil
}

// DeleteReaction removes the reaction id.
func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var room domain.RoomID
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(reactionIndexKey(id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var r domain.Reaction
		if err := getJSON(txn, key, &r); err != nil {
			return err
		}
		if m, _, err := getMessage(txn, r.MessageID); err == nil {
			room = m.Room
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(reactionIndexKey(id))
	})
	if err != nil {
		return translate(err)
	}
	if room != "" {
		s.publish(event.RecordDeleted{Room: room, Table: event.TableReactions, ID: id})
	}
	return nil
}

// CreateRoom stores a private room. An existing id is a conflict.
func (s *Store) CreateRoom(ctx context.Context, room domain.PrivateRoom) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("%w: room %s already exists", errors.ErrConflict, room.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(roomKey(room.ID), data)
	})
	return translate(err)
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.PrivateRoom, error) {
	if err := ctx.Err(); err != nil {
		return domain.PrivateRoom{}, err
	}
	var room domain.PrivateRoom
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if err != nil {
		return domain.PrivateRoom{}, translate(err)
	}
	return room, nil
}

// Profiles resolves every known user among userIDs in one read transaction.
func (s *Store) Profiles(ctx context.Context, userIDs []string) (map[string]domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profiles := make(map[string]domain.Profile, len(userIDs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range userIDs {
			var p domain.Profile
			err := getJSON(txn, profileKey(id), &p)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			profiles[id] = p
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return profiles, nil
}

// PutProfile creates or replaces the profile of p.ID.
func (s *Store) PutProfile(ctx context.Context, p domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("%w: profile without id", errors.ErrValidation)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return translate(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.ID), data)
	}))
}

// UpdateAvatar changes the avatar style of userID, creating its profile if needed.
func (s *Store) UpdateAvatar(ctx context.Context, userID, avatarStyle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translate(s.db.Update(func(txn *badger.Txn) error {
		p := domain.Profile{ID: userID, CreatedAt: s.clock().UTC()}
		if err := getJSON(txn, profileKey(userID), &p); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		p.AvatarStyle = avatarStyle
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return txn.Set(profileKey(userID), data)
	}))
}

func (s *Store) publish(evt event.DomainEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(evt)
}

func getMessage(txn *badger.Txn, id string) (domain.Message, []byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if err != nil {
		return domain.Message{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, nil, err
	}
	var m domain.Message
	if err := getJSON(txn, key, &m); err != nil {
		return domain.Message{}, nil, err
	}
	return m, key, nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, out)
	})
}

func deleteReactions(txn *badger.Txn, messageID string) error {
	prefix := reactionPrefix(messageID)
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	var keys [][]byte
	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var r domain.Reaction
		if err := it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &r)
		}); err != nil {
			it.Close()
			return err
		}
		keys = append(keys, it.Item().KeyCopy(nil))
		ids = append(ids, r.ID)
	}
	it.Close()
	for i, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Delete(reactionIndexKey(ids[i])); err != nil {
			return err
		}
	}
	return nil
}

// translate maps badger failures onto the surfaced error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%w: %v", errors.ErrNotFound, err)
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", errors.ErrTransientTransport, err)
	default:
		return errors.Classify(err)
	}
}
