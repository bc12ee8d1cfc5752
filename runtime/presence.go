package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/projection"
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// PresenceTracker turns presence snapshots into the online roster of the room
// and announces the local user. Every failure here is degraded, never surfaced.
type PresenceTracker struct {
	log      *slog.Logger
	profiles contract.ProfileLookup
	async    Async
	listener listener
	metrics  *observability.Metrics
	clock    func() time.Time

	self    domain.User
	handle  contract.Handle
	roster  *projection.Roster
	seq     uint64
	applied uint64
}

func NewPresenceTracker(log *slog.Logger, profiles contract.ProfileLookup, self domain.User,
	async Async, listener listener, metrics *observability.Metrics) *PresenceTracker {
	return &PresenceTracker{
		log:      log,
		profiles: profiles,
		async:    async,
		listener: listener,
		metrics:  metrics,
		clock:    time.Now,
		self:     self,
		roster:   projection.NewRoster(),
	}
}

func (p *PresenceTracker) WithClock(clock func() time.Time) *PresenceTracker {
	p.clock = clock
	return p
}

// Bind attaches the channel handle used to announce the local user.
func (p *PresenceTracker) Bind(handle contract.Handle) {
	p.handle = handle
}

// Announce tracks the local user on the channel. It is called once per
// transition to subscribed.
func (p *PresenceTracker) Announce() error {
	if p.handle == nil {
		return errors.ErrNotSubscribed
	}
	if err := p.handle.Track(p.self.Presence(p.clock().UTC())); err != nil {
		p.log.Warn("Presence announce failed", "error", err)
		return errors.Classify(err)
	}
	return nil
}

// Leave untracks the local user. Errors are only logged.
func (p *PresenceTracker) Leave() {
	if p.handle == nil {
		return
	}
	if err := p.handle.Untrack(); err != nil {
		p.log.Debug("Presence untrack failed", "error", err)
	}
}

// OnSync resolves display fields of a full roster in one profile query then
// replaces the roster. A snapshot resolved after a newer one is dropped.
func (p *PresenceTracker) OnSync(entries []domain.PresenceEntry) {
	p.seq++
	seq := p.seq
	ids := lo.Uniq(lo.FilterMap(entries, func(e domain.PresenceEntry, _ int) (string, bool) {
		return e.UserID, e.UserID != ""
	}))

	var profiles map[string]domain.Profile
	p.async(func(ctx context.Context) error {
		if len(ids) == 0 {
			return nil
		}
		var err error
		profiles, err = p.profiles.Profiles(ctx, ids)
		return err
	}, func(err error) {
		if seq <= p.applied {
			p.log.Debug("Dropping outdated presence snapshot", "seq", seq, "applied", p.applied)
			return
		}
		p.applied = seq
		if err != nil {
			p.log.Warn("Profile lookup failed, using presence payload", "error", err)
			profiles = nil
		}
		resolved := lo.Map(entries, func(e domain.PresenceEntry, _ int) domain.PresenceEntry {
			return resolve(e, profiles)
		})
		joined := p.roster.Apply(resolved, p.self.ID)
		p.metrics.Joined(len(joined))
		for _, entry := range joined {
			p.listener.joined(entry)
		}
		p.listener.changed()
	})
}

// resolve prefers the stored profile, then the presence payload, then defaults.
func resolve(e domain.PresenceEntry, profiles map[string]domain.Profile) domain.PresenceEntry {
	profile := profiles[e.UserID]
	e.DisplayName = lo.CoalesceOrEmpty(profile.DisplayName, e.DisplayName, domain.UnknownDisplayName)
	e.AvatarStyle = lo.CoalesceOrEmpty(profile.AvatarStyle, e.AvatarStyle, domain.DefaultAvatarStyle)
	return e
}

// ChangeAvatar persists style then re-announces the local user with it.
func (p *PresenceTracker) ChangeAvatar(style string, done func(err error)) {
	if style == "" {
		done(errors.ErrValidation)
		return
	}
	p.async(func(ctx context.Context) error {
		return errors.Classify(p.profiles.UpdateAvatar(ctx, p.self.ID, style))
	}, func(err error) {
		if err != nil {
			done(err)
			return
		}
		p.self.AvatarStyle = style
		if p.handle != nil {
			p.Leave()
			_ = p.Announce()
		}
		done(nil)
	})
}

func (p *PresenceTracker) Others() []domain.PresenceEntry { return p.roster.Others() }

func (p *PresenceTracker) Count() int { return p.roster.Count() }
