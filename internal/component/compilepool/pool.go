// Package compilepool implements the blocking-offload pool SPEC_FULL.md §5
// requires for wasm compilation: CPU-heavy work that must not run on a
// goroutine a caller is cooperatively waiting on without an explicit bound.
// It bounds concurrency the way the teacher bounds a Redis connection pool
// (PoolSize on RedisConfig) — a fixed-size pool of tokens — reinterpreted
// for compute instead of I/O connections, since Go has no connection
// object to pool for a pure CPU task.
package compilepool

import (
	"context"

	"github.com/wasmcache/component-cache/internal/component"
)

// Pool bounds the number of concurrent compile tasks in flight.
type Pool struct {
	tokens chan struct{}
}

// New returns a Pool allowing up to size concurrent compiles.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{tokens: make(chan struct{}, size)}
}

// Compile runs fn on a pool slot and returns its result once available. It
// is cancel-safe: if ctx is cancelled before a slot frees up, Compile
// returns ctx.Err() without ever running fn. If ctx is cancelled while fn
// is running, Compile returns at once with a *component.Unknown error
// describing the cancellation; fn keeps running to completion in the
// background (compilation itself is not preemptible), holding its slot
// until it finishes, and its result is dropped.
func (p *Pool) Compile(ctx context.Context, fn func() (component.Compiled, error)) (component.Compiled, error) {
	select {
	case p.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	type result struct {
		artifact component.Compiled
		err      error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-p.tokens }()
		artifact, err := fn()
		done <- result{artifact, err}
	}()

	select {
	case r := <-done:
		return r.artifact, r.err
	case <-ctx.Done():
		// fn keeps running to completion in the background (its result is
		// dropped) since compile work is not preemptible; the cache entry
		// this call would have populated is simply never written.
		return nil, &component.Unknown{Details: "compile join cancelled: " + ctx.Err().Error()}
	}
}
