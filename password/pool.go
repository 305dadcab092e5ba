package password

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrCapacity is returned by a rejecting pool when every hashing slot is
// occupied. Callers should surface it as an opaque throttling failure.
var ErrCapacity = errors.New("hash capacity exhausted")

// Pool serializes argon2 work through a bounded number of slots. The
// memory-hard function intentionally costs hundreds of milliseconds per
// invocation; without a cap, concurrent logins become a memory-exhaustion
// vector. With queue enabled callers block (honoring ctx) for a free slot,
// otherwise they are rejected immediately with ErrCapacity.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
	queue  bool
}

// NewPool wraps hasher with at most maxConcurrent in-flight hash operations.
func NewPool(hasher *Argon2, maxConcurrent int, queue bool) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		queue:  queue,
	}
}

// Hash runs Argon2.Hash on a pool slot. Both the wait for a slot and the
// hash itself are abortable via ctx: a caller whose deadline fires returns
// immediately with ctx.Err(). The computation is a pure function over local
// state, so an abandoned hash finishes in the background, is discarded, and
// holds its slot until done — giving up never defeats the concurrency cap.
func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}

	type result struct {
		record string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		record, err := p.hasher.Hash(secret)
		done <- result{record: record, err: err}
	}()

	select {
	case res := <-done:
		return res.record, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Verify runs Argon2.Verify on a pool slot, abortable via ctx the same way
// as Hash.
func (p *Pool) Verify(ctx context.Context, secret string, record string) (Outcome, error) {
	if err := p.acquire(ctx); err != nil {
		return Outcome{}, err
	}

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		outcome, err := p.hasher.Verify(secret, record)
		done <- result{outcome: outcome, err: err}
	}()

	select {
	case res := <-done:
		return res.outcome, res.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	if p.queue {
		return p.sem.Acquire(ctx, 1)
	}
	if !p.sem.TryAcquire(1) {
		return ErrCapacity
	}
	return nil
}
