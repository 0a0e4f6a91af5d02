// Package cache wraps the shared key-value store used for short-lived
// drone telemetry and the inbound command bus, grounded on the pack's
// drone-control-system cache service and go-redis/redis/v8 usage.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	gs "github.com/inspirers/groundstation/internal/groundstation"
)

// PositionRecord is the telemetry snapshot stored under
// drone_position:<connection_id>.
type PositionRecord struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Altitude     float64  `json:"altitude"`
	Timestamp    *float64 `json:"timestamp,omitempty"`
	ConnectionID string   `json:"connection_id"`
}

// Adapter is a typed front end onto the shared cache: put/get of short-lived
// keys, and subscription to the command channel.
type Adapter struct {
	client *redis.Client
	log    *logrus.Entry
}

// Config names the connection parameters the Supervisor reads from §6.4.
type Config struct {
	Host            string
	Port            int
	CommandChannel  string
	PositionTTLSecs int
}

// NewAdapter constructs an Adapter. The connection itself is lazy: the
// first Ping (performed by the Supervisor at startup) is what actually
// dials the store.
func NewAdapter(cfg Config, log *logrus.Entry) *Adapter {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	})
	return &Adapter{client: client, log: log.WithField("component", "cache")}
}

// Ping verifies connectivity, retrying with a fixed 5-second backoff until
// ctx is cancelled. Returns a TransportError if ctx expires first.
func (a *Adapter) Ping(ctx context.Context) error {
	for {
		err := a.client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		a.log.WithError(err).Warn("cache ping failed, retrying")
		select {
		case <-ctx.Done():
			return &gs.TransportError{Op: "ping", Err: ctx.Err()}
		case <-time.After(5 * time.Second):
		}
	}
}

// PutPosition stores a PositionRecord under drone_position:<connection_id>
// with the configured TTL.
func (a *Adapter) PutPosition(ctx context.Context, ttl time.Duration, rec PositionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &gs.ProtocolError{Reason: "encoding position record", Err: err}
	}
	key := positionKey(rec.ConnectionID)
	if err := a.client.Set(ctx, key, body, ttl).Err(); err != nil {
		return &gs.TransportError{Op: "put " + key, Err: err}
	}
	return nil
}

// GetPosition reads back a previously stored PositionRecord. redis.Nil is
// surfaced as (_, false, nil): the key is simply absent, not an error.
func (a *Adapter) GetPosition(ctx context.Context, connectionID string) (PositionRecord, bool, error) {
	key := positionKey(connectionID)
	body, err := a.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return PositionRecord{}, false, nil
	}
	if err != nil {
		return PositionRecord{}, false, &gs.TransportError{Op: "get " + key, Err: err}
	}
	var rec PositionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return PositionRecord{}, false, &gs.ProtocolError{Reason: "decoding position record", Err: err}
	}
	return rec, true, nil
}

// Subscribe returns the raw payload channel for the command channel and a
// close function. Calling the close function unsubscribes and closes the
// returned channel; cancelling ctx alone does not.
func (a *Adapter) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error) {
	sub := a.client.Subscribe(ctx, channel)
	return sub.Channel(), sub.Close
}

func positionKey(connectionID string) string {
	return "drone_position:" + connectionID
}

// Close releases the underlying connection pool. Safe to call once at
// process shutdown.
func (a *Adapter) Close() error {
	return a.client.Close()
}
