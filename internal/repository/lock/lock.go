// Package lock serializes reconciliation of a physical index.
// An in-process keyed mutex always applies; a store-backed lease extends it across workers.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "fedsearch:lock:"

const (
	defaultTTL  = 30 * time.Second
	defaultPoll = 100 * time.Millisecond
)

// store is the consumer interface for leases (ISP).
type store interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)
}

// Locker hands out per-key exclusive sections.
type Locker struct {
	mu    sync.Mutex
	local map[string]*entry

	store  store
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets the store lease lifetime.
func WithTTL(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithPollInterval sets how often a contended lease is retried.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// New creates a Locker. A nil store keeps locking in-process only.
func New(s store, logger *zap.Logger, opts ...Option) *Locker {
	l := &Locker{
		local:  make(map[string]*entry),
		store:  s,
		ttl:    defaultTTL,
		poll:   defaultPoll,
		logger: logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Lock blocks until key is held or ctx is done. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if err := l.lockLocal(ctx, key); err != nil {
		return nil, err
	}
	if l.store == nil {
		return func() { l.unlockLocal(key) }, nil
	}

	token, err := l.acquireLease(ctx, key)
	if err != nil {
		l.unlockLocal(key)
		return nil, err
	}
	return func() {
		if token != "" {
			l.releaseLease(key, token)
		}
		l.unlockLocal(key)
	}, nil
}

func (l *Locker) lockLocal(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.local[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.local[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (l *Locker) unlockLocal(key string) {
	l.mu.Lock()
	e := l.local[key]
	l.mu.Unlock()
	if e == nil {
		return
	}
	<-e.ch
	l.release(key, e)
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.local, key)
	}
}

// acquireLease returns "" when the store is unreachable: the section then runs under the local lock only.
func (l *Locker) acquireLease(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	for {
		ok, err := l.store.SetNX(ctx, keyPrefix+key, []byte(token), l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("lock %s: %w", key, ctx.Err())
			}
			l.logger.Warn("Distributed lock unavailable, continuing with local lock",
				zap.String("key", key), zap.Error(err))
			return "", nil
		}
		if ok {
			return token, nil
		}

		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}

func (l *Locker) releaseLease(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := l.store.CompareAndDelete(ctx, keyPrefix+key, []byte(token)); err != nil {
		l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
	}
}
