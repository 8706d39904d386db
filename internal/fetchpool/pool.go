package fetchpool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result records the outcome of one work item. Errors are captured as
// values so a failing or slow item never takes down its chunk, and a
// chunk's failures never abort later chunks.
type Result struct {
	Index int
	Item  string
	Err   error
}

// Pool runs work items in chunks of Concurrency goroutines, waiting
// ChunkDelay between chunks to throttle the outbound request rate.
// Each item runs under its own ItemTimeout.
type Pool struct {
	Concurrency int
	ChunkDelay  time.Duration
	ItemTimeout time.Duration
}

func New(concurrency int, chunkDelay, itemTimeout time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		Concurrency: concurrency,
		ChunkDelay:  chunkDelay,
		ItemTimeout: itemTimeout,
	}
}

// Run processes every item and returns one Result per item, in input
// order. Context cancellation stops the pool between chunks; items not
// started are reported with the context error.
func (p *Pool) Run(ctx context.Context, items []string, fn func(ctx context.Context, item string) error) []Result {
	results := make([]Result, len(items))

	for start := 0; start < len(items); start += p.Concurrency {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i] = Result{Index: i, Item: items[i], Err: err}
			}
			return results
		}

		end := start + p.Concurrency
		if end > len(items) {
			end = len(items)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				itemCtx := ctx
				if p.ItemTimeout > 0 {
					var cancel context.CancelFunc
					itemCtx, cancel = context.WithTimeout(ctx, p.ItemTimeout)
					defer cancel()
				}
				results[i] = Result{Index: i, Item: items[i], Err: fn(itemCtx, items[i])}
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) && p.ChunkDelay > 0 {
			select {
			case <-time.After(p.ChunkDelay):
			case <-ctx.Done():
			}
		}
	}

	return results
}
