package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ZoneCategory - тип зоны, задаётся в редакторе зон
type ZoneCategory string

const (
	ZoneCategoryHome   ZoneCategory = "home"
	ZoneCategoryWork   ZoneCategory = "work"
	ZoneCategorySchool ZoneCategory = "school"
	ZoneCategoryGym    ZoneCategory = "gym"
	ZoneCategorySocial ZoneCategory = "social"
	ZoneCategoryOther  ZoneCategory = "other"
)

// ParseZoneCategory приводит строку из БД к категории. Неизвестные значения -> other
func ParseZoneCategory(s string) ZoneCategory {
	switch c := ZoneCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case ZoneCategoryHome, ZoneCategoryWork, ZoneCategorySchool, ZoneCategoryGym, ZoneCategorySocial:
		return c
	default:
		return ZoneCategoryOther
	}
}

// Zone - именованная круговая геозона. Только для чтения в этом сервисе
type Zone struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Center       Coordinate   `json:"center"`
	RadiusMeters float64      `json:"radius_meters"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	Category     ZoneCategory `json:"category"`
}

// Validate проверяет инвариант radius > 0 и корректность центра
func (z Zone) Validate() error {
	if z.RadiusMeters <= 0 {
		return fmt.Errorf("zone %s: radius must be positive, got %v", z.ID, z.RadiusMeters)
	}
	if !z.Center.Valid() {
		return fmt.Errorf("zone %s: invalid center %v,%v", z.ID, z.Center.Latitude, z.Center.Longitude)
	}
	return nil
}

// MembershipState - "находится ли пользователь внутри зоны" по ID зоны
type MembershipState map[uuid.UUID]bool

// ZoneExitEvent - переход пользователя изнутри зоны наружу
type ZoneExitEvent struct {
	ProfileID uuid.UUID `json:"profile_id"`
	ZoneID    uuid.UUID `json:"zone_id"`
	ExitTime  time.Time `json:"exit_time"`
}

// ExitDay - календарный день выхода в UTC, ключ дедупликации
func (e ZoneExitEvent) ExitDay() time.Time {
	return UTCDay(e.ExitTime)
}

// UTCDay обрезает время до полуночи UTC того же календарного дня
func UTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordOutcome - результат записи выхода из зоны. Нулевое значение - запись не состоялась
type RecordOutcome int

const (
	Recorded RecordOutcome = iota + 1
	AlreadyRecordedToday
)

func (o RecordOutcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case AlreadyRecordedToday:
		return "already_recorded_today"
	default:
		return "unknown"
	}
}
