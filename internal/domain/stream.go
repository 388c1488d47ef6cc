package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stream names (должны совпадать с мобильным backend)
const (
	StreamLocationUpdate = "stream:location:update"
	StreamZoneExited     = "stream:zone:exited"
	StreamTileUncovered  = "stream:tile:uncovered"
)

// LocationUpdateEvent - входящее обновление местоположения (Redis Stream / MQTT)
type LocationUpdateEvent struct {
	ProfileID uuid.UUID `json:"profile_id" validate:"required"`
	Latitude  float64   `json:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Timestamp int64     `json:"timestamp" validate:"gt=0"`
}

// GeoPoint конвертирует событие в точку. timestamp - unix секунды
func (e *LocationUpdateEvent) GeoPoint() GeoPoint {
	return GeoPoint{
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		Timestamp: time.Unix(e.Timestamp, 0).UTC(),
	}
}

// ZoneExitedEvent - уведомление для UI о засчитанном выходе из зоны
type ZoneExitedEvent struct {
	ProfileID uuid.UUID `json:"profile_id"`
	ZoneID    uuid.UUID `json:"zone_id"`
	ZoneName  string    `json:"zone_name"`
	ExitTime  time.Time `json:"exit_time"`
}

// TileUncoveredEvent - уведомление для UI об открытой ячейке вместе со снимком статистики
type TileUncoveredEvent struct {
	ProfileID  uuid.UUID     `json:"profile_id"`
	Tile       TileKey       `json:"tile"`
	Center     Coordinate    `json:"center"`
	FirstVisit time.Time     `json:"first_visit"`
	Stats      CoverageStats `json:"stats"`
}

// StreamMessage - сообщение из Redis Stream
type StreamMessage struct {
	ID     string
	Stream string
	Data   map[string]interface{}
}
