// Package scheduler runs independent units of work with a fixed ceiling on
// how many are in flight. It is the only fan-out point of a sync pass.
package scheduler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/p2g/internal/errors"
)

// Result is the outcome of one item. Exactly one of Value or Err is meaningful.
type Result[T, R any] struct {
	Item  T
	Value R
	Err   error
}

// RunAll invokes worker for every item with at most cfg.Concurrency calls in
// flight and returns one Result per item, in input order.
//
// A failing or panicking worker never cancels its siblings. Once ctx is done,
// items that have not started yet are reported with ctx.Err() instead of
// being run. Nothing is retried here.
func RunAll[T, R any](ctx context.Context, items []T, cfg Config, worker func(context.Context, T) (R, error)) []Result[T, R] {
	if err := validateConfig(cfg); err != nil {
		cfg.Concurrency = DefaultConcurrency
	}

	results := make([]Result[T, R], len(items))
	total := len(items)
	var done atomic.Int64

	// A plain Group, not WithContext: the first error must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)

	for i, item := range items {
		results[i].Item = item

		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		g.Go(func() error {
			v, err := runOne(ctx, item, worker)
			results[i].Value = v
			results[i].Err = err

			n := done.Add(1)
			if cfg.OnProgress != nil {
				cfg.OnProgress(int(n), total)
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, item T, worker func(context.Context, T) (R, error)) (v R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("worker panic: %v", r)
		}
	}()
	return worker(ctx, item)
}

// Failed returns the results that carry an error
func Failed[T, R any](results []Result[T, R]) []Result[T, R] {
	var out []Result[T, R]
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
