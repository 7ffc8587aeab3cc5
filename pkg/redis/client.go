package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const driverGeoKey = "driver:locations"

// Client wraps the Redis connection.
type Client struct {
	rdb *goredis.Client
}

// NewClient connects to Redis with retry.
func NewClient(addr string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err == nil {
			cancel()
			log.Println("[redis] connected")
			return &Client{rdb: rdb}, nil
		}
		cancel()
		log.Printf("[redis] waiting... (%d/20)", i+1)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("redis: failed to connect after 20 attempts")
}

// SetDriverLocation mirrors a driver's last reported position into a GEO set.
// The authoritative copy lives in the driver's profile row; the GEO set
// serves fast ops lookups.
func (c *Client) SetDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	return c.rdb.GeoAdd(ctx, driverGeoKey, &goredis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// GetNearbyDriverIDs returns driver user IDs within radiusKm of (lat,lng),
// closest first.
func (c *Client) GetNearbyDriverIDs(ctx context.Context, lat, lng, radiusKm float64, count int) ([]string, error) {
	return c.rdb.GeoSearch(ctx, driverGeoKey, &goredis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Count:      count,
		Sort:       "ASC",
	}).Result()
}

// RemoveDriverLocation drops a driver from the GEO set (e.g. going offline).
func (c *Client) RemoveDriverLocation(ctx context.Context, driverID string) error {
	return c.rdb.ZRem(ctx, driverGeoKey, driverID).Err()
}

// CacheRequest stores a tow request summary in a hash with a 24h TTL.
func (c *Client) CacheRequest(ctx context.Context, requestID string, data map[string]string) error {
	key := "tow_request:" + requestID
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedRequest retrieves a cached tow request hash.
func (c *Client) GetCachedRequest(ctx context.Context, requestID string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, "tow_request:"+requestID).Result()
}

// Close tears down the Redis connection.
func (c *Client) Close() error { return c.rdb.Close() }
