package config

import (
	"context"
	"encoding/json"
	"sync"
)

// RealtimePublisher is the contract for the real-time channel transport.
// Publish is a best-effort side effect of a state change: callers log and
// continue on error, they never roll back on it.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel string, event string, payload any) error
}

type realtimeEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// redisRealtimePublisher pushes the envelope onto a redis pub/sub channel.
// Socket bridges (admin dashboard, storefront) subscribe on the other side.
type redisRealtimePublisher struct{}

func (redisRealtimePublisher) Publish(ctx context.Context, channel string, event string, payload any) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	body, err := json.Marshal(realtimeEnvelope{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, body).Err()
}

var (
	realtimePublisher   RealtimePublisher = redisRealtimePublisher{}
	realtimePublisherMu sync.RWMutex
)

func GetRealtimePublisher() RealtimePublisher {
	realtimePublisherMu.RLock()
	defer realtimePublisherMu.RUnlock()
	return realtimePublisher
}

// SetRealtimePublisher swaps the transport (tests, alternate brokers).
func SetRealtimePublisher(p RealtimePublisher) {
	realtimePublisherMu.Lock()
	defer realtimePublisherMu.Unlock()
	realtimePublisher = p
}
