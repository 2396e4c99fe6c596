// Package batchtest provides an in-memory batch.Driver for tests.
package batchtest

import (
	"context"
	"sync"
	"time"

	"github.com/nimburion/rediswrapper/pkg/batch"
)

// Op names a queued command.
type Op string

// Queued command operations.
const (
	OpSet Op = "set"
	OpGet Op = "get"
	OpDel Op = "del"
)

// Command is one queued command as seen by the memory store.
type Command struct {
	Op    Op
	Keys  []string
	Value string
	TTL   time.Duration
}

// Hook intercepts the execution of the n-th batch (1-based). Returning
// handled=false lets the store execute the commands normally.
type Hook func(ctx context.Context, n int, cmds []Command) (outcomes []batch.Outcome, handled bool, err error)

// Store is an in-memory key space answering like Redis: SET replies "OK",
// GET replies the string or nil, DEL replies the int64 number of removed keys.
type Store struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	execs   int
	history [][]Command

	// Delay is applied before every batch execution unless ctx ends first.
	Delay time.Duration
	// Hook, if set, is consulted for every batch.
	Hook Hook
	// BeforeExec, if set, runs under no lock right before the n-th batch.
	BeforeExec func(n int, cmds []Command)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

// NewBatch implements batch.Driver.
func (s *Store) NewBatch() batch.RawBatch {
	return &memoryBatch{store: s}
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Lookup returns the value held for key.
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// TTL returns the expiry recorded by the last SET of key.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Put stores value under key directly.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Remove deletes key directly.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Execs returns how many batches were executed.
func (s *Store) Execs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// History returns the commands of every executed batch in order.
func (s *Store) History() [][]Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Command, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) exec(ctx context.Context, cmds []Command) ([]batch.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.execs++
	n := s.execs
	s.history = append(s.history, cmds)
	s.mu.Unlock()

	if s.BeforeExec != nil {
		s.BeforeExec(n, cmds)
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if s.Hook != nil {
		if outcomes, handled, err := s.Hook(ctx, n, cmds); handled {
			return outcomes, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	outcomes := make([]batch.Outcome, 0, len(cmds))
	for _, cmd := range cmds {
		switch cmd.Op {
		case OpSet:
			s.data[cmd.Keys[0]] = cmd.Value
			s.ttls[cmd.Keys[0]] = cmd.TTL
			outcomes = append(outcomes, batch.Outcome{Value: "OK"})
		case OpGet:
			if v, ok := s.data[cmd.Keys[0]]; ok {
				outcomes = append(outcomes, batch.Outcome{Value: v})
			} else {
				outcomes = append(outcomes, batch.Outcome{Value: nil})
			}
		case OpDel:
			var removed int64
			for _, key := range cmd.Keys {
				if _, ok := s.data[key]; ok {
					delete(s.data, key)
					delete(s.ttls, key)
					removed++
				}
			}
			outcomes = append(outcomes, batch.Outcome{Value: removed})
		}
	}
	return outcomes, nil
}

type memoryBatch struct {
	store *Store
	cmds  []Command
}

func (b *memoryBatch) Set(key, value string, ttl time.Duration) {
	b.cmds = append(b.cmds, Command{Op: OpSet, Keys: []string{key}, Value: value, TTL: ttl})
}

func (b *memoryBatch) Get(key string) {
	b.cmds = append(b.cmds, Command{Op: OpGet, Keys: []string{key}})
}

func (b *memoryBatch) Del(keys ...string) {
	b.cmds = append(b.cmds, Command{Op: OpDel, Keys: keys})
}

func (b *memoryBatch) ExecRaw(ctx context.Context) ([]batch.Outcome, error) {
	return b.store.exec(ctx, b.cmds)
}
