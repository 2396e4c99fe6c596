// Package batch normalizes the results of atomic multi-command executions.
//
// Drivers report one Outcome per queued command. Callers of this package
// never see outcomes: they receive either every value in queue order or a
// single error.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBatchExecuted is returned when a batch is executed a second time.
var ErrBatchExecuted = errors.New("batch already executed")

// Outcome is the raw result of one command inside an executed batch.
// A missing key is reported as a nil Value, not as an Err.
type Outcome struct {
	Err   error
	Value any
}

// Queuer is the command-building surface of a batch.
type Queuer interface {
	// Set queues a SET of key to value expiring after ttl (no expiry when ttl is 0).
	Set(key, value string, ttl time.Duration)
	// Get queues a GET of key.
	Get(key string)
	// Del queues a DEL of keys.
	Del(keys ...string)
}

// RawBatch is a driver batch reporting per-command outcomes.
type RawBatch interface {
	Queuer
	// ExecRaw runs the queued commands atomically. A non-nil error means the
	// batch as a whole failed and no outcome is meaningful.
	ExecRaw(ctx context.Context) ([]Outcome, error)
}

// Driver creates driver batches.
type Driver interface {
	NewBatch() RawBatch
}

// Unwrap converts a raw batch result into the normalized form: execErr
// unchanged, else the error of the first failed command, else all values.
func Unwrap(outcomes []Outcome, execErr error) ([]any, error) {
	if execErr != nil {
		return nil, execErr
	}
	values := make([]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		values = append(values, outcome.Value)
	}
	return values, nil
}

// Adapter exposes normalized batches on top of a Driver.
type Adapter struct {
	driver Driver
}

// NewAdapter wraps driver.
func NewAdapter(driver Driver) *Adapter {
	return &Adapter{driver: driver}
}

// Multi starts a new batch owned by the caller.
func (a *Adapter) Multi() *Batch {
	return &Batch{raw: a.driver.NewBatch()}
}

// Execute builds one batch with build and executes it. When build fails
// nothing is sent to the store.
func (a *Adapter) Execute(ctx context.Context, build func(Queuer) error) ([]any, error) {
	b := a.Multi()
	if err := build(b); err != nil {
		return nil, err
	}
	return b.Exec(ctx)
}

// Batch is a single-use atomic batch with normalized execution.
type Batch struct {
	raw  RawBatch
	once sync.Once
}

// Set implements Queuer.
func (b *Batch) Set(key, value string, ttl time.Duration) {
	b.raw.Set(key, value, ttl)
}

// Get implements Queuer.
func (b *Batch) Get(key string) {
	b.raw.Get(key)
}

// Del implements Queuer.
func (b *Batch) Del(keys ...string) {
	b.raw.Del(keys...)
}

// Exec runs the batch and blocks until the store answers.
func (b *Batch) Exec(ctx context.Context) ([]any, error) {
	return b.exec(ctx)
}

// ExecAsync runs the batch in the background and invokes callback exactly
// once with the same result Exec would have returned.
func (b *Batch) ExecAsync(ctx context.Context, callback func([]any, error)) {
	go func() {
		callback(b.exec(ctx))
	}()
}

func (b *Batch) exec(ctx context.Context) ([]any, error) {
	executed := false
	var values []any
	var err error
	b.once.Do(func() {
		executed = true
		values, err = Unwrap(b.raw.ExecRaw(ctx))
	})
	if !executed {
		return nil, ErrBatchExecuted
	}
	return values, err
}
