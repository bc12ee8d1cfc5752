package main

import (
	"chat-sync/domain"
	"chat-sync/infrastructure/storage"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

var people = []domain.Profile{
	{ID: "seed-alice", DisplayName: "alice", Color: "#ef4444", AvatarStyle: "avataaars"},
	{ID: "seed-bob", DisplayName: "bob", Color: "#22c55e", AvatarStyle: "bottts"},
	{ID: "seed-carol", DisplayName: "carol", Color: "#3b82f6", AvatarStyle: "pixel-art"},
}

var lines = []string{
	"morning everyone",
	"did anyone read the release notes?",
	"yes, the reconnect fix is in",
	"nice, switching rooms feels instant now",
	"lunch?",
}

// seed fills a badger directory with profiles and a conversation so that the
// client has history to show on its first run.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	room := flag.String("room", string(domain.DefaultRoom), "Room to fill")
	count := flag.Int("count", 20, "Number of messages")
	flag.Parse()

	if err := seed(*dbPath, domain.RoomID(*room), *count); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func seed(path string, room domain.RoomID, count int) error {
	log := logs.GetLoggerFromString("INFO")
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := storage.NewStore(db, log)
	start := time.Now().UTC().Add(-time.Duration(count) * time.Minute)
	for _, p := range people {
		p.CreatedAt = start
		if err := store.PutProfile(ctx, p); err != nil {
			return err
		}
	}

	var previous *domain.Message
	for i := range count {
		author := people[i%len(people)]
		m := domain.Message{
			ID:          uuid.NewString(),
			Room:        room,
			AuthorID:    author.ID,
			AuthorName:  author.DisplayName,
			AuthorColor: author.Color,
			Content:     lines[i%len(lines)],
			CreatedAt:   start.Add(time.Duration(i) * time.Minute),
		}
		if previous != nil && i%4 == 0 {
			m.Reply = previous.ReplySnippet()
		}
		stored, err := store.InsertMessage(ctx, m)
		if err != nil {
			return err
		}
		if i%3 == 0 {
			reactor := lo.Sample(people)
			_, err := store.InsertReaction(ctx, domain.Reaction{
				MessageID: stored.ID,
				UserID:    reactor.ID,
				Emoji:     lo.Sample(domain.ReactionEmojis),
			})
			if err != nil {
				return err
			}
		}
		previous = &stored
	}
	log.Info("Seeded", "room", room, "messages", count, "profiles", len(people))
	return nil
}
