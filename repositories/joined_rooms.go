package repositories

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

const maxUnionAttempts = 5

// JoinedRoomRepository remembers the private rooms each user has unlocked.
// It satisfies contract.JoinedRooms.
type JoinedRoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewJoinedRoomRepository(db *badger.DB, log *slog.Logger) *JoinedRoomRepository {
	return &JoinedRoomRepository{db: db, log: log}
}

func joinedKey(userID string) []byte { return []byte("joined:" + userID) }

// Add unions room into the list of userID and returns the resulting list.
// Concurrent adds never lose a room: a transaction conflict reads the list
// again and retries.
func (r *JoinedRoomRepository) Add(userID string, room domain.RoomID) ([]domain.RoomID, error) {
	if userID == "" || room == "" {
		return nil, fmt.Errorf("%w: user and room are required", errors.ErrValidation)
	}
	var rooms []domain.RoomID
	for attempt := 1; ; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			current, err := readRooms(txn, userID)
			if err != nil {
				return err
			}
			if slices.Contains(current, room) {
				rooms = current
				return nil
			}
			rooms = append(current, room)
			data, err := json.Marshal(rooms)
			if err != nil {
				return err
			}
			return txn.Set(joinedKey(userID), data)
		})
		if err == nil {
			return rooms, nil
		}
		if !errors.Is(err, badger.ErrConflict) || attempt == maxUnionAttempts {
			return nil, errors.Classify(err)
		}
		r.log.Debug("Joined rooms conflict, retrying", "user", userID, "attempt", attempt)
	}
}

// List returns the rooms joined by userID, in join order.
func (r *JoinedRoomRepository) List(userID string) ([]domain.RoomID, error) {
	var rooms []domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rooms, err = readRooms(txn, userID)
		return err
	})
	if err != nil {
		return nil, errors.Classify(err)
	}
	return rooms, nil
}

func readRooms(txn *badger.Txn, userID string) ([]domain.RoomID, error) {
	item, err := txn.Get(joinedKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms []domain.RoomID
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &rooms)
	})
	return rooms, err
}
