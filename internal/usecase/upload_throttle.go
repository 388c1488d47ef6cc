package usecase

import (
	"time"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/pkg/utils"
)

// Пороги по умолчанию для выгрузки местоположения в профиль
const (
	DefaultUploadInterval = 60 * time.Second
	DefaultUploadDistance = 50.0
)

// UploadThrottle решает, нужно ли выгружать точку в удалённое хранилище профиля.
// Не потокобезопасен: принадлежит одному движку
type UploadThrottle struct {
	minInterval  time.Duration
	minDistance  float64
	lastUploaded *domain.GeoPoint
}

// NewUploadThrottle создаёт троттлер. Неположительные значения заменяются значениями по умолчанию
func NewUploadThrottle(minInterval time.Duration, minDistanceMeters float64) *UploadThrottle {
	if minInterval <= 0 {
		minInterval = DefaultUploadInterval
	}
	if minDistanceMeters <= 0 {
		minDistanceMeters = DefaultUploadDistance
	}
	return &UploadThrottle{
		minInterval: minInterval,
		minDistance: minDistanceMeters,
	}
}

// ShouldUpload - true для первой точки, либо если прошло достаточно времени
// или пользователь сместился достаточно далеко от последней выгруженной точки
func (t *UploadThrottle) ShouldUpload(p domain.GeoPoint) bool {
	if t.lastUploaded == nil {
		return true
	}
	if p.Timestamp.Sub(t.lastUploaded.Timestamp) >= t.minInterval {
		return true
	}
	return utils.Distance(t.lastUploaded.Coordinate(), p.Coordinate()) >= t.minDistance
}

// RecordUploaded вызывается только после успешной выгрузки
func (t *UploadThrottle) RecordUploaded(p domain.GeoPoint) {
	t.lastUploaded = &p
}

// LastUploaded возвращает последнюю выгруженную точку
func (t *UploadThrottle) LastUploaded() (domain.GeoPoint, bool) {
	if t.lastUploaded == nil {
		return domain.GeoPoint{}, false
	}
	return *t.lastUploaded, true
}
