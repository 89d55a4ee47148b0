package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dheerajbunny/gocomet-ride/internal/models"
)

// Cache TTLs. Short read-through TTLs are the correctness backstop
// against a missed invalidation.
const (
	driverLocationTTL  = 30 * time.Second
	rideSnapshotTTL    = 5 * time.Second
	paymentSnapshotTTL = 10 * time.Second
	idempotencyTTL     = 24 * time.Hour
	demandWindow       = 5 * time.Minute
)

// InitRedis connects to Redis using REDIS_URL and returns the client.
// The client is passed explicitly to everything that needs it.
func InitRedis() (*redis.Client, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return client, nil
}

// Cache is a thin wrapper over Redis for the short-lived snapshots the
// core reads through. A nil *Cache is valid and behaves as a pass-through
// miss, which keeps the services testable without a Redis instance.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a cache around an initialized Redis client.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil
}

// SetDriverLocation stores a driver location snapshot for fast lookup
func (c *Cache) SetDriverLocation(ctx context.Context, driverID uint, lat, lng float64, tier, status string) error {
	if !c.enabled() {
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"lat":    lat,
		"lng":    lng,
		"tier":   tier,
		"status": status,
	})
	if err != nil {
		return err
	}

	key := fmt.Sprintf("driver:loc:%d", driverID)
	return c.rdb.Set(ctx, key, data, driverLocationTTL).Err()
}

// InvalidateDriverLocation drops a driver location snapshot
func (c *Cache) InvalidateDriverLocation(ctx context.Context, driverID uint) {
	if !c.enabled() {
		return
	}
	c.rdb.Del(ctx, fmt.Sprintf("driver:loc:%d", driverID))
}

// GetRide retrieves a cached ride snapshot
func (c *Cache) GetRide(ctx context.Context, rideID uint) (*models.Ride, bool) {
	if !c.enabled() {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, fmt.Sprintf("ride:%d", rideID)).Result()
	if err != nil {
		return nil, false
	}

	var ride models.Ride
	if err := json.Unmarshal([]byte(data), &ride); err != nil {
		return nil, false
	}
	return &ride, true
}

// SetRide caches a ride snapshot for a few seconds to reduce DB load
func (c *Cache) SetRide(ctx context.Context, ride *models.Ride) {
	if !c.enabled() {
		return
	}

	data, err := json.Marshal(ride)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, fmt.Sprintf("ride:%d", ride.ID), data, rideSnapshotTTL)
}

// InvalidateRide drops the cached snapshot of a ride. Called on every
// successful state transition touching the ride.
func (c *Cache) InvalidateRide(ctx context.Context, rideID uint) {
	if !c.enabled() {
		return
	}
	c.rdb.Del(ctx, fmt.Sprintf("ride:%d", rideID))
}

// GetPayment retrieves a cached payment snapshot for a ride
func (c *Cache) GetPayment(ctx context.Context, rideID uint) (*models.Payment, bool) {
	if !c.enabled() {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, fmt.Sprintf("payment:%d", rideID)).Result()
	if err != nil {
		return nil, false
	}

	var payment models.Payment
	if err := json.Unmarshal([]byte(data), &payment); err != nil {
		return nil, false
	}
	return &payment, true
}

// SetPayment caches the latest payment snapshot for a ride
func (c *Cache) SetPayment(ctx context.Context, payment *models.Payment) {
	if !c.enabled() {
		return
	}

	data, err := json.Marshal(payment)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, fmt.Sprintf("payment:%d", payment.RideID), data, paymentSnapshotTTL)
}

// InvalidatePayment drops the cached payment snapshot for a ride
func (c *Cache) InvalidatePayment(ctx context.Context, rideID uint) {
	if !c.enabled() {
		return
	}
	c.rdb.Del(ctx, fmt.Sprintf("payment:%d", rideID))
}

// PublishRideUpdate publishes a ride status change to Redis pub/sub so
// other processes can follow transitions without polling the DB.
func (c *Cache) PublishRideUpdate(ctx context.Context, rideID uint, status string) error {
	if !c.enabled() {
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"rideId":    rideID,
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return c.rdb.Publish(ctx, "ride:updates", data).Err()
}

// RedisDemandCounter counts ride requests per geographic cell with a
// trailing expiry window.
type RedisDemandCounter struct {
	rdb *redis.Client
}

// NewRedisDemandCounter creates a demand counter backed by Redis.
func NewRedisDemandCounter(rdb *redis.Client) *RedisDemandCounter {
	return &RedisDemandCounter{rdb: rdb}
}

// Incr increments the cell counter and resets its expiry, so the value
// reflects demand over the trailing window rather than a running total.
func (r *RedisDemandCounter) Incr(ctx context.Context, cell string, window time.Duration) (int64, error) {
	key := "demand:" + cell
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
		return count, err
	}
	return count, nil
}

// RedisIdempotencyStore keeps the serialized first response for a client
// token so a retried request replays it verbatim.
type RedisIdempotencyStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRideIdempotencyStore returns the idempotency store for create-ride requests.
func NewRideIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, prefix: "idem:ride:"}
}

// NewPaymentIdempotencyStore returns the idempotency store for create-payment requests.
func NewPaymentIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, prefix: "idem:pay:"}
}

// Get returns the stored response for a token, if any.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Save persists a response under a token for the retention window.
func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, payload []byte) error {
	return s.rdb.Set(ctx, s.prefix+key, payload, idempotencyTTL).Err()
}
