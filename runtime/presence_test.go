package runtime

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/mocks"
	"chat-sync/observability"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func entry(id string) domain.PresenceEntry {
	return domain.PresenceEntry{UserID: id, OnlineAt: time.Unix(0, 0).UTC()}
}

func newPresence(t *testing.T, async Async) (*PresenceTracker, *mocks.MockProfileLookup, *recorder, *observability.Metrics) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileLookup(ctrl)
	rec := &recorder{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewPresenceTracker(log, profiles, alice, async, rec, metrics), profiles, rec, metrics
}

func TestPresence_OnSync_ResolvesInOneQuery(t *testing.T) {
	req := require.New(t)
	p, profiles, _, _ := newPresence(t, syncAsync)

	withPayload := entry("u2")
	withPayload.DisplayName = "Payload"
	withPayload.AvatarStyle = "bottts"

	// Then profiles are looked up once for the unique ids
	profiles.EXPECT().Profiles(gomock.Any(), []string{"alice", "u1", "u2", "u3"}).
		Return(map[string]domain.Profile{
			"u1": {ID: "u1", DisplayName: "Stored", AvatarStyle: "pixel-art"},
		}, nil).Times(1)

	// When a snapshot lists the same user twice
	p.OnSync([]domain.PresenceEntry{entry("alice"), entry("u1"), withPayload, entry("u1"), entry("u3")})

	others := p.Others()
	req.Equal(4, p.Count())
	req.Len(others, 3)
	byID := make(map[string]domain.PresenceEntry)
	for _, e := range others {
		byID[e.UserID] = e
	}
	req.Equal("Stored", byID["u1"].DisplayName)
	req.Equal("pixel-art", byID["u1"].AvatarStyle)
	req.Equal("Payload", byID["u2"].DisplayName)
	req.Equal("bottts", byID["u2"].AvatarStyle)
	req.Equal(domain.UnknownDisplayName, byID["u3"].DisplayName)
	req.Equal(domain.DefaultAvatarStyle, byID["u3"].AvatarStyle)
}

func TestPresence_OnSync_JoinDiff(t *testing.T) {
	req := require.New(t)
	p, profiles, rec, metrics := newPresence(t, syncAsync)
	profiles.EXPECT().Profiles(gomock.Any(), gomock.Any()).Return(map[string]domain.Profile{}, nil).AnyTimes()

	// Given a first snapshot
	p.OnSync([]domain.PresenceEntry{entry("u1"), entry("u2")})
	req.Empty(rec.joins)

	// When u3 appears then the snapshot is repeated
	p.OnSync([]domain.PresenceEntry{entry("u1"), entry("u2"), entry("u3")})
	p.OnSync([]domain.PresenceEntry{entry("u1"), entry("u2"), entry("u3")})

	// Then exactly one join notification is raised
	req.Len(rec.joins, 1)
	req.Equal("u3", rec.joins[0].UserID)
	req.Equal(1.0, testutil.ToFloat64(metrics.JoinNotifications))
}

func TestPresence_OnSync_ProfileFailureDegrades(t *testing.T) {
	req := require.New(t)
	p, profiles, rec, _ := newPresence(t, syncAsync)

	withPayload := entry("u1")
	withPayload.DisplayName = "Bob"
	profiles.EXPECT().Profiles(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection reset"))

	p.OnSync([]domain.PresenceEntry{withPayload})

	req.Equal("Bob", p.Others()[0].DisplayName)
	req.Empty(rec.errs)
}

func TestPresence_OnSync_OutdatedSnapshotDropped(t *testing.T) {
	req := require.New(t)
	queue := &queuedAsync{}
	p, profiles, _, _ := newPresence(t, queue.run)
	profiles.EXPECT().Profiles(gomock.Any(), gomock.Any()).Return(map[string]domain.Profile{}, nil).AnyTimes()

	// Given two snapshots resolving concurrently
	p.OnSync([]domain.PresenceEntry{entry("u1")})
	p.OnSync([]domain.PresenceEntry{entry("u1"), entry("u2")})

	// When the newest resolves first
	queue.release(1)
	queue.release(0)

	// Then the oldest does not overwrite it
	req.Equal(2, p.Count())
}

func TestPresence_AnnounceAndChangeAvatar(t *testing.T) {
	req := require.New(t)
	p, profiles, _, _ := newPresence(t, syncAsync)
	handle := &fakeHandle{room: domain.DefaultRoom}

	req.ErrorIs(p.Announce(), errors.ErrNotSubscribed)

	p.Bind(handle)
	req.NoError(p.Announce())
	req.Equal(1, handle.trackedCount())
	req.Equal(alice.ID, handle.tracked[0].UserID)

	profiles.EXPECT().UpdateAvatar(gomock.Any(), alice.ID, "bottts").Return(nil)

	var out error
	p.ChangeAvatar("bottts", func(err error) { out = err })

	// Then the user is re-announced with the new style
	req.NoError(out)
	req.Equal(1, handle.untracked)
	req.Equal(2, handle.trackedCount())
	req.Equal("bottts", handle.tracked[1].AvatarStyle)
}

func TestPresence_ChangeAvatar_Failure(t *testing.T) {
	req := require.New(t)
	p, profiles, _, _ := newPresence(t, syncAsync)
	handle := &fakeHandle{room: domain.DefaultRoom}
	p.Bind(handle)

	profiles.EXPECT().UpdateAvatar(gomock.Any(), alice.ID, "bottts").Return(errors.ErrAuthorization)

	var out error
	p.ChangeAvatar("bottts", func(err error) { out = err })

	req.ErrorIs(out, errors.ErrAuthorization)
	req.Zero(handle.trackedCount())
}
