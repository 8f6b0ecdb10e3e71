package dashboard

import (
	"sort"

	"github.com/campusport/achievement-api/internal/models"
)

// EventKind labels a semantic change between two snapshots.
type EventKind string

const (
	EventNewSubmission  EventKind = "NEW_SUBMISSION"
	EventBecameVerified EventKind = "BECAME_VERIFIED"
	EventBecameRejected EventKind = "BECAME_REJECTED"
)

// ChangeEvent is one user-facing notification derived from a snapshot diff.
// The diff guarantees at most one event per claim per reconciliation tick, so
// consumers can render each event exactly once without their own dedup.
type ChangeEvent struct {
	Kind  EventKind
	Claim models.AchievementClaim
}

// DiffOptions tunes event derivation per dashboard role.
type DiffOptions struct {
	// IncludeSubmissions emits NewSubmission events for ids that appear with
	// a pending status. Reviewer dashboards want these; a student submitting
	// their own claim does not need a toast about it.
	IncludeSubmissions bool
}

// DeriveEvents compares two snapshots keyed by claim id and returns the
// semantic delta. Comparison is id-for-id; list order between fetches carries
// no meaning. A nil prev is the baseline fetch and yields no events.
func DeriveEvents(prev, next map[string]models.AchievementClaim, opts DiffOptions) []ChangeEvent {
	if prev == nil || len(next) == 0 {
		return nil
	}

	events := make([]ChangeEvent, 0, 4)
	for id, claim := range next {
		old, seen := prev[id]
		if !seen {
			if opts.IncludeSubmissions && claim.Status == models.ClaimStatusPending {
				events = append(events, ChangeEvent{Kind: EventNewSubmission, Claim: claim})
			}
			continue
		}
		if old.Status == claim.Status {
			continue
		}
		switch claim.Status {
		case models.ClaimStatusVerified:
			events = append(events, ChangeEvent{Kind: EventBecameVerified, Claim: claim})
		case models.ClaimStatusRejected:
			events = append(events, ChangeEvent{Kind: EventBecameRejected, Claim: claim})
		}
	}

	// Map iteration order is random; give consumers a stable ordering.
	sort.Slice(events, func(i, j int) bool {
		return events[i].Claim.ID < events[j].Claim.ID
	})
	return events
}

// Keyed converts a fetched claim list into a snapshot map.
func Keyed(claims []models.AchievementClaim) map[string]models.AchievementClaim {
	keyed := make(map[string]models.AchievementClaim, len(claims))
	for _, claim := range claims {
		keyed[claim.ID] = claim
	}
	return keyed
}
