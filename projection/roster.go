package projection

import (
	"chat-sync/domain"
	"cmp"
	"slices"
)

// Roster is the online view of one room built from full presence snapshots.
type Roster struct {
	others   []domain.PresenceEntry
	count    int
	previous map[string]struct{}
	primed   bool
}

func NewRoster() *Roster {
	return &Roster{previous: make(map[string]struct{})}
}

// Apply replaces the roster with a snapshot and returns the users that were not
// in the immediately preceding one. The first snapshot after a reset only
// primes the diff base and reports nobody.
// The local user counts in Count but is never part of Others nor of the diff.
func (r *Roster) Apply(entries []domain.PresenceEntry, selfID string) []domain.PresenceEntry {
	seen := make(map[string]struct{}, len(entries))
	others := make([]domain.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		if _, dup := seen[e.UserID]; dup {
			continue
		}
		seen[e.UserID] = struct{}{}
		if e.UserID != selfID {
			others = append(others, e)
		}
	}
	slices.SortFunc(others, func(a, b domain.PresenceEntry) int {
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	var joined []domain.PresenceEntry
	if r.primed {
		for _, e := range others {
			if _, ok := r.previous[e.UserID]; !ok {
				joined = append(joined, e)
			}
		}
	}

	r.previous = make(map[string]struct{}, len(others))
	for _, e := range others {
		r.previous[e.UserID] = struct{}{}
	}
	r.others = others
	r.count = len(seen)
	r.primed = true
	return joined
}

func (r *Roster) Others() []domain.PresenceEntry { return slices.Clone(r.others) }

func (r *Roster) Count() int { return r.count }

// IDs returns every user id of the snapshot, the local user excluded.
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.others))
	for i, e := range r.others {
		ids[i] = e.UserID
	}
	return ids
}
