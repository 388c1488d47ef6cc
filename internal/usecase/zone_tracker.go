package usecase

import (
	"github.com/google/uuid"
	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/pkg/utils"
)

// ZoneBoundaryTracker хранит членство пользователя в зонах и обнаруживает выходы
type ZoneBoundaryTracker struct {
	profileID uuid.UUID
	state     domain.MembershipState
	changed   bool
}

func NewZoneBoundaryTracker(profileID uuid.UUID) *ZoneBoundaryTracker {
	return &ZoneBoundaryTracker{
		profileID: profileID,
		state:     make(domain.MembershipState),
	}
}

// Evaluate сравнивает точку с текущим набором зон. Граница зоны считается внутренней.
// Зоны, которых нет в списке, забываются без события; новые зоны стартуют с "снаружи"
func (t *ZoneBoundaryTracker) Evaluate(p domain.GeoPoint, zones []domain.Zone) []domain.ZoneExitEvent {
	next := make(domain.MembershipState, len(zones))
	var exits []domain.ZoneExitEvent
	changed := false

	for _, zone := range zones {
		if _, seen := next[zone.ID]; seen {
			continue
		}

		inside := utils.Distance(p.Coordinate(), zone.Center) <= zone.RadiusMeters
		wasInside := t.state[zone.ID]

		if wasInside && !inside {
			exits = append(exits, domain.ZoneExitEvent{
				ProfileID: t.profileID,
				ZoneID:    zone.ID,
				ExitTime:  p.Timestamp,
			})
		}
		if wasInside != inside {
			changed = true
		}
		next[zone.ID] = inside
	}

	for zoneID, inside := range t.state {
		if _, ok := next[zoneID]; !ok && inside {
			changed = true
		}
	}

	t.state = next
	t.changed = changed
	return exits
}

// Changed - изменилось ли членство хотя бы в одной зоне при последнем Evaluate
func (t *ZoneBoundaryTracker) Changed() bool {
	return t.changed
}

// Snapshot возвращает копию текущего состояния
func (t *ZoneBoundaryTracker) Snapshot() domain.MembershipState {
	cp := make(domain.MembershipState, len(t.state))
	for k, v := range t.state {
		cp[k] = v
	}
	return cp
}

// Restore заменяет состояние сохранённым снимком
func (t *ZoneBoundaryTracker) Restore(state domain.MembershipState) {
	t.state = make(domain.MembershipState, len(state))
	for k, v := range state {
		t.state[k] = v
	}
	t.changed = false
}
