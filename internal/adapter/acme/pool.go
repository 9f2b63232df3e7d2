package acme

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool bounds concurrent issuances. Each lego Obtain call holds an HTTP-01
// challenge open and a handful of CA round trips; running hundreds at once
// would trip the CA's rate limits.
type pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func newPool(limit int) *pool {
	if limit < 1 {
		limit = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Go runs fn in the background once a slot is free. fn is skipped if ctx is
// cancelled while waiting.
func (p *pool) Go(ctx context.Context, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		// Acquire can win a slot that freed up as ctx was cancelled.
		if ctx.Err() != nil {
			return
		}
		fn()
	}()
}

// Wait blocks until every started job has finished or been skipped.
func (p *pool) Wait() {
	p.wg.Wait()
}
