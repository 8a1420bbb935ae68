// Package batch runs per-item work on a bounded pool of goroutines. Item
// failures never abort the batch: each item reports a Result and the caller
// aggregates them into a Summary.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a Pool is built with a non-positive limit.
const DefaultConcurrency = 8

// Result is the outcome of processing a single item.
type Result struct {
	ID  string
	Err error
}

// Summary aggregates the results of a batch run.
type Summary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Total returns the number of items attempted.
func (s Summary) Total() int {
	return s.Processed + s.Errors
}

// Merge adds the counts of other to s.
func (s *Summary) Merge(other Summary) {
	s.Processed += other.Processed
	s.Errors += other.Errors
}

// Summarize counts successful and failed results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Err != nil {
			s.Errors++
		} else {
			s.Processed++
		}
	}
	return s
}

// Pool bounds the number of items processed concurrently.
type Pool struct {
	limit int
}

// NewPool creates a Pool running at most limit items at once.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Pool{limit: limit}
}

// Limit returns the configured concurrency.
func (p *Pool) Limit() int {
	return p.limit
}

// Run calls fn for every id with at most Limit calls in flight and returns
// one Result per id in input order. Once ctx is cancelled no new items are
// started; those items are reported with the context error.
func Run(ctx context.Context, p *Pool, ids []string, fn func(ctx context.Context, id string) error) []Result {
	results := make([]Result, len(ids))
	if len(ids) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(p.limit)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(ids); j++ {
				results[j] = Result{ID: ids[j], Err: err}
			}
			break
		}

		g.Go(func() error {
			// Each goroutine owns results[i].
			results[i] = Result{ID: id, Err: safeCall(ctx, id, fn)}
			// Item errors stay in the Result; the group itself never fails.
			return nil
		})
	}

	_ = g.Wait()
	return results
}
