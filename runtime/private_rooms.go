package runtime

import (
	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/errors"
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// CreatePrivateRoom stores a new room gated by secret and adds it to the
// rooms joined by the current user. The active room is left unchanged.
func (c *Controller) CreatePrivateRoom(ctx context.Context, name, secret string) (domain.RoomID, error) {
	if err := auth.ValidatePrivateRoom(auth.PrivateRoomRequest{Name: name, Secret: secret}); err != nil {
		return "", err
	}
	id := domain.Slugify(name)
	if id == "" {
		return "", fmt.Errorf("%w: room name has no letter nor digit", errors.ErrValidation)
	}
	if id.IsFixed() {
		return "", fmt.Errorf("%w: %s is a public room", errors.ErrConflict, id)
	}

	user, err := c.currentUser(ctx)
	if err != nil {
		return "", err
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", errors.Classify(err)
	}

	room := domain.PrivateRoom{
		ID:         id,
		Name:       strings.TrimSpace(name),
		SecretHash: hash,
		CreatedBy:  user.ID,
		CreatedAt:  c.clock().UTC(),
	}
	if err := c.store.CreateRoom(ctx, room); err != nil {
		return "", errors.Classify(err)
	}
	if _, err := c.joinedRooms.Add(user.ID, id); err != nil {
		return "", errors.Classify(err)
	}
	c.log.Info("Private room created", "room", id, "user", user.ID)
	return id, nil
}

// JoinPrivateRoom checks secret against the stored room and remembers the room
// for the current user. A wrong secret is reported as errors.ErrWrongSecret.
// The secret itself is not kept once the call returns.
func (c *Controller) JoinPrivateRoom(ctx context.Context, id domain.RoomID, secret string) error {
	user, err := c.currentUser(ctx)
	if err != nil {
		return err
	}
	if id.IsFixed() {
		return nil
	}

	room, err := c.store.GetRoom(ctx, id)
	if err != nil {
		return errors.Classify(err)
	}
	if err := auth.VerifySecret(secret, room.SecretHash); err != nil {
		c.log.Info("Private room join refused", "room", id, "user", user.ID)
		return errors.Classify(err)
	}
	if _, err := c.joinedRooms.Add(user.ID, id); err != nil {
		return errors.Classify(err)
	}
	c.log.Info("Private room joined", "room", id, "user", user.ID)
	return nil
}

// JoinedRooms lists the public rooms followed by the private rooms joined by
// the current user.
func (c *Controller) JoinedRooms(ctx context.Context) ([]domain.RoomID, error) {
	user, err := c.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	joined, err := c.joinedRooms.List(user.ID)
	if err != nil {
		return nil, errors.Classify(err)
	}
	return lo.Uniq(append(append([]domain.RoomID{}, domain.FixedRooms...), joined...)), nil
}

func containsRoom(rooms []domain.RoomID, room domain.RoomID) bool {
	return lo.Contains(rooms, room)
}
