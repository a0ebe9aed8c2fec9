// Package cache keeps hot read-only lookups in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"orderflow/internal/models"
	"orderflow/internal/store"
)

const DefaultRestaurantTTL = 10 * time.Minute

// Restaurants is a read-through cache in front of the restaurant directory.
// Redis failures fall back to the directory; misses are not cached. A cached
// snapshot, isActive included, can be up to ttl old.
type Restaurants struct {
	client *redis.Client
	origin store.RestaurantDirectory
	ttl    time.Duration
}

func NewRestaurants(client *redis.Client, origin store.RestaurantDirectory, ttl time.Duration) *Restaurants {
	if ttl <= 0 {
		ttl = DefaultRestaurantTTL
	}
	return &Restaurants{client: client, origin: origin, ttl: ttl}
}

func restaurantKey(id primitive.ObjectID) string {
	return "restaurant:" + id.Hex()
}

func (r *Restaurants) FindRestaurant(ctx context.Context, id primitive.ObjectID) (*models.Restaurant, error) {
	key := restaurantKey(id)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var restaurant models.Restaurant
		if json.Unmarshal(data, &restaurant) == nil {
			return &restaurant, nil
		}
		log.Println("[CACHE] [ERROR] dropping undecodable entry", key)
	case !errors.Is(err, redis.Nil):
		log.Println("[CACHE] [ERROR] redis get failed:", err)
	}

	restaurant, err := r.origin.FindRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(restaurant); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			log.Println("[CACHE] [ERROR] redis set failed:", err)
		}
	}
	return restaurant, nil
}
