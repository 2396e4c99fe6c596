// Package store wires storage adapters from configuration.
package store

import "context"

// Adapter is the minimal lifecycle and health contract for storage adapters.
// *redis.RedisAdapter from pkg/store/redis is its implementation here; its
// HealthCheck is the write/verify check, not a bare PING.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}
