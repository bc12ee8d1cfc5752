package main

import (
	"chat-sync/domain"
	"chat-sync/internal"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	// Messages by default, "msgidx:" and "rxid:" only hold keys
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	rows, err := internal.Scan(db, *prefix, recordMapper)
	if err != nil {
		log.Fatal(err)
	}
	internal.WriteTable(os.Stdout, rows)
}

// recordMapper decodes the JSON value of messages, reactions, rooms and
// profiles to show a readable detail column.
func recordMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)
	switch {
	case strings.HasPrefix(key, "msg:"):
		var m domain.Message
		if err := json.Unmarshal(val, &m); err == nil {
			row.Detail = fmt.Sprintf("%s: %s", m.AuthorName, m.Content)
		}
	case strings.HasPrefix(key, "rx:"):
		var r domain.Reaction
		if err := json.Unmarshal(val, &r); err == nil {
			row.EntityID = r.MessageID
			row.Detail = fmt.Sprintf("%s by %s", r.Emoji, r.UserID)
		}
	case strings.HasPrefix(key, "room:"):
		var room domain.PrivateRoom
		if err := json.Unmarshal(val, &room); err == nil {
			row.Room = room.ID.String()
			row.Timestamp = room.CreatedAt.Format("15:04:05")
			row.Detail = fmt.Sprintf("%q created by %s", room.Name, room.CreatedBy)
		}
	case strings.HasPrefix(key, "profile:"):
		var p domain.Profile
		if err := json.Unmarshal(val, &p); err == nil {
			row.EntityID = p.ID
			row.Detail = fmt.Sprintf("%s %s %s", p.DisplayName, p.Color, p.AvatarStyle)
		}
	}
	return row
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed writer leaves a log to truncate, which read-only mode refuses
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
