package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
)

const (
	tokenKeyPrefix = "attendance:device-token:"
	ownerKeyPrefix = "attendance:device-owner:"
)

// CachedDevices decorates a Store with a Redis cache of token→device
// lookups. Rotating a token or deleting a device evicts the cached entry.
// Redis failures fall through to the wrapped store.
type CachedDevices struct {
	attendance.Store
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedDevices wraps next. Entries live for ttl.
func NewCachedDevices(next attendance.Store, client *redis.Client, ttl time.Duration, logger *log.Logger) *CachedDevices {
	if logger == nil {
		logger = log.Default()
	}
	return &CachedDevices{Store: next, client: client, ttl: ttl, logger: logger}
}

// tokenKey hashes the token so raw credentials never appear in key listings.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

func ownerKey(deviceID string) string { return ownerKeyPrefix + deviceID }

// DeviceByToken serves from cache when possible. Misses are not cached.
func (c *CachedDevices) DeviceByToken(ctx context.Context, token string) (attendance.Device, error) {
	key := tokenKey(token)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var d attendance.Device
		if jerr := json.Unmarshal(raw, &d); jerr == nil {
			return d, nil
		}
		c.logger.Printf("device cache: dropping undecodable entry")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Printf("device cache get failed: %v", err)
	}

	d, err := c.Store.DeviceByToken(ctx, token)
	if err != nil {
		return attendance.Device{}, err
	}
	c.remember(ctx, key, d)
	return d, nil
}

// SetDeviceToken rotates the token and evicts the old mapping.
func (c *CachedDevices) SetDeviceToken(ctx context.Context, id, token string) (attendance.Device, error) {
	d, err := c.Store.SetDeviceToken(ctx, id, token)
	if err != nil {
		return attendance.Device{}, err
	}
	c.forget(ctx, id)
	return d, nil
}

// DeleteDevice deletes the device and evicts its mapping.
func (c *CachedDevices) DeleteDevice(ctx context.Context, id string) error {
	if err := c.Store.DeleteDevice(ctx, id); err != nil {
		return err
	}
	c.forget(ctx, id)
	return nil
}

func (c *CachedDevices) remember(ctx context.Context, key string, d attendance.Device) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.Set(ctx, ownerKey(d.ID), key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Printf("device cache set failed: %v", err)
	}
}

func (c *CachedDevices) forget(ctx context.Context, deviceID string) {
	owner := ownerKey(deviceID)
	key, err := c.client.Get(ctx, owner).Result()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		c.logger.Printf("device cache evict failed: %v", err)
		return
	}
	if err := c.client.Del(ctx, key, owner).Err(); err != nil {
		c.logger.Printf("device cache evict failed: %v", err)
	}
}
