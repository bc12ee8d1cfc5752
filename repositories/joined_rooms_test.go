package repositories

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openRepository(t *testing.T) *JoinedRoomRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJoinedRoomRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestJoinedRooms_AddIsUnion(t *testing.T) {
	req := require.New(t)
	repository := openRepository(t)

	rooms, err := repository.Add("alice", "book-club")
	req.NoError(err)
	req.Equal([]domain.RoomID{"book-club"}, rooms)

	// Adding twice keeps a single entry
	rooms, err = repository.Add("alice", "book-club")
	req.NoError(err)
	req.Equal([]domain.RoomID{"book-club"}, rooms)

	rooms, err = repository.Add("alice", "chess")
	req.NoError(err)
	req.Equal([]domain.RoomID{"book-club", "chess"}, rooms)

	listed, err := repository.List("alice")
	req.NoError(err)
	req.Equal(rooms, listed)

	other, err := repository.List("bob")
	req.NoError(err)
	req.Empty(other)

	_, err = repository.Add("", "chess")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestJoinedRooms_ConcurrentAddsKeepEveryRoom(t *testing.T) {
	req := require.New(t)
	repository := openRepository(t)
	const n = 4

	// When several rooms are joined at once
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repository.Add("alice", domain.RoomID(fmt.Sprintf("room-%d", i)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then none is lost
	rooms, err := repository.List("alice")
	req.NoError(err)
	req.Len(rooms, n)
}
