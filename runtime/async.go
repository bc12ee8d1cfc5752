// Package runtime hosts the room session engine: one event loop owning the
// active room, and the trackers it drives.
// Nothing in this package is safe for concurrent use except the Controller's
// caller-facing methods; everything else runs on the loop goroutine.
package runtime

import (
	"chat-sync/domain"
	"context"
)

// Async runs work outside the event loop, then hands its error to apply on the
// loop. apply is never called when the room changed in between.
type Async func(work func(ctx context.Context) error, apply func(err error))

// listener is how trackers report back to the loop that owns them.
type listener interface {
	changed()
	failed(err error)
	joined(entry domain.PresenceEntry)
}
