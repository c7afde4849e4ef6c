package segmetrics

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// prefetcher loads batches of samples ahead of the scanner. Samples inside
// a batch load concurrently; batches are delivered in index order.
type prefetcher struct {
	batches chan loadedBatch
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

type loadedBatch struct {
	samples []Sample
	err     error
}

// newPrefetcher starts loading samples [lo, hi) of ds, batchSize at a time
// with up to workers concurrent loads. One batch is kept ready ahead of
// the consumer.
func newPrefetcher(ctx context.Context, ds Dataset, lo, hi, batchSize, workers int) *prefetcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &prefetcher{
		batches: make(chan loadedBatch, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run(ctx, ds, lo, hi, batchSize, workers)
	return p
}

func (p *prefetcher) run(ctx context.Context, ds Dataset, lo, hi, batchSize, workers int) {
	defer close(p.done)
	defer close(p.batches)

	for start := lo; start < hi; start += batchSize {
		end := min(start+batchSize, hi)
		samples := make([]Sample, end-start)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				s, err := ds.Sample(gctx, i)
				if err != nil {
					return fmt.Errorf("loading sample %d: %w", i, err)
				}
				samples[i-start] = s
				return nil
			})
		}
		b := loadedBatch{samples: samples, err: g.Wait()}

		select {
		case p.batches <- b:
		case <-ctx.Done():
			return
		}
		if b.err != nil {
			return
		}
	}
}

// Next returns the next batch, or io.EOF once the range is exhausted.
// Respects context cancellation.
func (p *prefetcher) Next(ctx context.Context) ([]Sample, error) {
	select {
	case b, ok := <-p.batches:
		if !ok {
			return nil, io.EOF
		}
		return b.samples, b.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops loading and waits for in-flight loads to return.
func (p *prefetcher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	<-p.done
}
