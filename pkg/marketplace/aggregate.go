package marketplace

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/skillmeat/pkg/observability"
)

// AggregateResult is the outcome of a fan-out listings call
type AggregateResult struct {
	Pages    map[string]*ListingPage
	Failures map[string]error
}

// Listings flattens every successful page, ordered by broker name
func (r *AggregateResult) Listings() []*MarketplaceListing {
	names := r.Succeeded()
	var out []*MarketplaceListing
	for _, name := range names {
		if page := r.Pages[name]; page != nil {
			out = append(out, page.Listings...)
		}
	}
	return out
}

// Succeeded returns the names of brokers that answered, sorted
func (r *AggregateResult) Succeeded() []string {
	return sortedKeys(r.Pages)
}

// Failed returns the names of brokers that errored or timed out, sorted
func (r *AggregateResult) Failed() []string {
	return sortedKeys(r.Failures)
}

type pageOrErr struct {
	page *ListingPage
	err  error
}

// AggregateListings queries every broker concurrently, each bounded by
// perBrokerTimeout. A broker that fails or overruns its timeout is recorded in
// Failures; the others are unaffected. The batch itself never fails.
func AggregateListings(ctx context.Context, brokers []Broker, q ListingQuery, perBrokerTimeout time.Duration) *AggregateResult {
	result := &AggregateResult{
		Pages:    make(map[string]*ListingPage, len(brokers)),
		Failures: make(map[string]error),
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)

	for _, b := range brokers {
		eg.Go(func() error {
			bctx, cancel := ctx, context.CancelFunc(func() {})
			if perBrokerTimeout > 0 {
				bctx, cancel = context.WithTimeout(ctx, perBrokerTimeout)
			}
			defer cancel()

			// buffered so an abandoned call can still complete
			ch := make(chan pageOrErr, 1)
			go func() {
				page, err := b.Listings(bctx, q)
				ch <- pageOrErr{page: page, err: err}
			}()

			var res pageOrErr
			select {
			case res = <-ch:
			case <-bctx.Done():
				res = pageOrErr{err: fmt.Errorf("broker %s: %w", b.Name(), bctx.Err())}
			}

			mu.Lock()
			defer mu.Unlock()
			if res.err != nil {
				observability.FromContext(ctx).WithError(res.err).WithField("broker", b.Name()).Warn("Broker listings failed")
				result.Failures[b.Name()] = res.err
			} else {
				result.Pages[b.Name()] = res.page
			}
			return nil
		})
	}

	_ = eg.Wait()
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
