// Package probe verifies that a key-value store accepts writes and serves
// reads within a deadline.
//
// A check writes a unique key/value pair with a short expiry in one atomic
// batch, then reads and deletes it in a second one. Keys carry the token in
// a hash tag so both batches land on the same cluster slot.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/rediswrapper/pkg/batch"
	"github.com/nimburion/rediswrapper/pkg/resilience"
	"github.com/nimburion/rediswrapper/pkg/token"
)

const (
	// DefaultDeadline bounds a whole check.
	DefaultDeadline = 2 * time.Second
	// DefaultKeyTTL expires probe keys left behind by an interrupted check.
	DefaultKeyTTL = 60 * time.Second
	// DefaultNamespace prefixes every probe key.
	DefaultNamespace = "_redis-wrapper"

	writeAck        = "OK"
	deletedExpected = int64(1)
)

// Keys is the key/value pair written by one check.
type Keys struct {
	Key   string
	Value string
}

// KeysFor derives the probe key and value for tok.
func KeysFor(namespace, tok string) Keys {
	return Keys{
		Key:   fmt.Sprintf("%s:healthCheckKey:{%s}", namespace, tok),
		Value: fmt.Sprintf("%s:healthCheckValue:{%s}", namespace, tok),
	}
}

// Option configures a Prober.
type Option func(*Prober)

// WithDeadline sets the default deadline of Check.
func WithDeadline(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.deadline = d
		}
	}
}

// WithKeyTTL sets the expiry of probe keys.
func WithKeyTTL(ttl time.Duration) Option {
	return func(p *Prober) {
		if ttl > 0 {
			p.keyTTL = ttl
		}
	}
}

// WithNamespace sets the probe key prefix.
func WithNamespace(ns string) Option {
	return func(p *Prober) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

// WithDescriber sets where Context.Target is read from.
func WithDescriber(d Describer) Option {
	return func(p *Prober) {
		p.describer = d
	}
}

// WithTokenSource replaces the process-wide token generator.
func WithTokenSource(next func() string) Option {
	return func(p *Prober) {
		if next != nil {
			p.nextToken = next
		}
	}
}

// Prober runs health checks through normalized batches. A Prober holds no
// per-check state and may be used concurrently.
type Prober struct {
	batches   *batch.Adapter
	deadline  time.Duration
	keyTTL    time.Duration
	namespace string
	describer Describer
	nextToken func() string
}

// New creates a Prober over driver. When driver also implements Describer it
// is used for diagnostics unless WithDescriber says otherwise.
func New(driver batch.Driver, opts ...Option) *Prober {
	p := &Prober{
		batches:   batch.NewAdapter(driver),
		deadline:  DefaultDeadline,
		keyTTL:    DefaultKeyTTL,
		namespace: DefaultNamespace,
		nextToken: token.Generate,
	}
	if d, ok := driver.(Describer); ok {
		p.describer = d
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deadline returns the default deadline of Check.
func (p *Prober) Deadline() time.Duration {
	return p.deadline
}

// Check runs one health check with the default deadline.
func (p *Prober) Check(ctx context.Context) error {
	return p.CheckWithDeadline(ctx, p.deadline)
}

// HealthCheck is Check under the name health registries expect.
func (p *Prober) HealthCheck(ctx context.Context) error {
	return p.Check(ctx)
}

// CheckAsync runs Check in the background and calls callback exactly once.
func (p *Prober) CheckAsync(ctx context.Context, callback func(error)) {
	go func() {
		callback(p.Check(ctx))
	}()
}

// CheckWithDeadline runs one health check bounded by deadline. A deadline <= 0
// selects the default. The returned error, if any, is a *Error.
func (p *Prober) CheckWithDeadline(ctx context.Context, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = p.deadline
	}

	tok := p.nextToken()
	keys := KeysFor(p.namespace, tok)
	st := newState(Context{
		Stage:   StagePending,
		Token:   tok,
		Timeout: deadline,
		Target:  p.target(),
	})

	err := resilience.WithTimeout(ctx, deadline, func(runCtx context.Context) error {
		return p.run(runCtx, keys, st)
	})
	if err == nil {
		return nil
	}
	if perr, ok := AsError(err); ok {
		return perr
	}
	if errors.Is(err, resilience.ErrTimeout) {
		return st.fail(KindTimeout, "timeout", nil)
	}
	// caller context ended before the deadline
	return st.fail(KindTimeout, "timeout", err)
}

func (p *Prober) run(ctx context.Context, keys Keys, st *state) error {
	st.setStage(StageWrite)
	write := p.batches.Multi()
	write.Set(keys.Key, keys.Value, p.keyTTL)
	reply, err := write.Exec(ctx)
	if err != nil {
		return st.fail(KindWrite, "write multi errored", err)
	}
	if len(reply) != 1 || reply[0] != writeAck {
		st.setReply(reply)
		return st.fail(KindWrite, "write failed", nil)
	}

	st.setStage(StageVerify)
	verify := p.batches.Multi()
	verify.Get(keys.Key)
	verify.Del(keys.Key)
	reply, err = verify.Exec(ctx)
	if err != nil {
		return st.fail(KindVerify, "get/del multi errored", err)
	}
	if len(reply) != 2 || reply[0] != keys.Value || reply[1] != deletedExpected {
		st.setReply(reply)
		return st.fail(KindVerify, "read/delete failed", nil)
	}
	return nil
}

func (p *Prober) target() Target {
	if p.describer == nil {
		return Target{}
	}
	return p.describer.Describe()
}
