package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/location-engine/internal/domain"
	"github.com/location-engine/internal/usecase"
)

func TestUploadThrottle(t *testing.T) {
	base := domain.Coordinate{Latitude: 40.0, Longitude: -74.0}
	t0 := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

	t.Run("first point always uploads", func(t *testing.T) {
		th := usecase.NewUploadThrottle(60*time.Second, 50)
		assert.True(t, th.ShouldUpload(pointAt(base, t0)))

		_, ok := th.LastUploaded()
		assert.False(t, ok)
	})

	t.Run("close points within interval upload only once", func(t *testing.T) {
		th := usecase.NewUploadThrottle(60*time.Second, 50)

		uploads := 0
		for i := 0; i < 6; i++ {
			p := pointAt(metersNorth(base, float64(i)*8), t0.Add(time.Duration(i)*10*time.Second))
			if th.ShouldUpload(p) {
				th.RecordUploaded(p)
				uploads++
			}
		}

		assert.Equal(t, 1, uploads)
	})

	t.Run("elapsed interval triggers regardless of distance", func(t *testing.T) {
		th := usecase.NewUploadThrottle(60*time.Second, 50)
		th.RecordUploaded(pointAt(base, t0))

		assert.False(t, th.ShouldUpload(pointAt(base, t0.Add(59*time.Second))))
		assert.True(t, th.ShouldUpload(pointAt(base, t0.Add(61*time.Second))))
	})

	t.Run("distance triggers regardless of time", func(t *testing.T) {
		th := usecase.NewUploadThrottle(60*time.Second, 50)
		th.RecordUploaded(pointAt(base, t0))

		assert.False(t, th.ShouldUpload(pointAt(metersNorth(base, 49), t0.Add(time.Second))))
		assert.True(t, th.ShouldUpload(pointAt(metersNorth(base, 51), t0.Add(time.Second))))
	})

	t.Run("failed upload keeps old baseline", func(t *testing.T) {
		th := usecase.NewUploadThrottle(60*time.Second, 50)
		first := pointAt(base, t0)
		th.RecordUploaded(first)

		far := pointAt(metersNorth(base, 200), t0.Add(5*time.Second))
		assert.True(t, th.ShouldUpload(far))
		// выгрузка не удалась - RecordUploaded не вызываем

		next := pointAt(metersNorth(base, 205), t0.Add(10*time.Second))
		assert.True(t, th.ShouldUpload(next))

		last, ok := th.LastUploaded()
		assert.True(t, ok)
		assert.Equal(t, first, last)
	})

	t.Run("non-positive thresholds fall back to defaults", func(t *testing.T) {
		th := usecase.NewUploadThrottle(0, -1)
		th.RecordUploaded(pointAt(base, t0))

		assert.False(t, th.ShouldUpload(pointAt(metersNorth(base, 10), t0.Add(30*time.Second))))
		assert.True(t, th.ShouldUpload(pointAt(base, t0.Add(usecase.DefaultUploadInterval))))
	})
}
