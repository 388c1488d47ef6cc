package domain

import "time"

// Coordinate - пара широта/долгота без времени (центр зоны, центр тайла)
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeoPoint - одна фиксация местоположения. Неизменяемая, живёт только на время обработки
type GeoPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Coordinate возвращает координаты точки без времени
func (p GeoPoint) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Valid проверяет диапазоны широты и долготы
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
