// +build ignore

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type LocationUpdateEvent struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp int64     `json:"timestamp"`
}

// Публикует короткий маршрут на север от Ann Arbor: точка раз в минуту, шаг ~150 м
func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for streams")
	profile := flag.String("profile", "", "profile UUID (random if empty)")
	points := flag.Int("points", 5, "number of points")
	flag.Parse()

	profileID := uuid.New()
	if *profile != "" {
		profileID = uuid.MustParse(*profile)
	}

	client := redis.NewClient(&redis.Options{
		Addr: *redisAddr,
	})
	defer client.Close()

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	const stepMeters = 150.0
	lat, lon := 42.2808, -83.7430
	start := time.Now().Add(-time.Duration(*points) * time.Minute)

	for i := 0; i < *points; i++ {
		event := LocationUpdateEvent{
			ProfileID: profileID,
			Latitude:  lat + float64(i)*stepMeters/6371000*180/math.Pi,
			Longitude: lon,
			Timestamp: start.Add(time.Duration(i) * time.Minute).Unix(),
		}

		data, err := json.Marshal(event)
		if err != nil {
			log.Fatalf("Failed to marshal event: %v", err)
		}

		id, err := client.XAdd(ctx, &redis.XAddArgs{
			Stream: "stream:location:update",
			Values: map[string]interface{}{
				"data": string(data),
			},
		}).Result()
		if err != nil {
			log.Fatalf("Failed to publish event: %v", err)
		}

		fmt.Printf("Published %s: %.6f,%.6f\n", id, event.Latitude, event.Longitude)
	}

	fmt.Printf("Profile: %s\n", profileID)
}
