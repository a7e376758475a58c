package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/skillmeat/pkg/bundle"
)

type stubBroker struct {
	name  string
	delay time.Duration
	err   error
	// ignoreCtx makes the broker sleep through cancellation
	ignoreCtx bool
}

func (s *stubBroker) Name() string { return s.name }

func (s *stubBroker) Listings(ctx context.Context, q ListingQuery) (*ListingPage, error) {
	if s.ignoreCtx {
		time.Sleep(s.delay)
	} else if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	l, err := NewListing(ListingFields{ListingID: s.name + "-1", Name: "bundle", Publisher: s.name})
	if err != nil {
		return nil, err
	}
	return &ListingPage{Broker: s.name, Listings: []*MarketplaceListing{l}, Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *stubBroker) Download(context.Context, string, string) (string, error) { return "", nil }

func (s *stubBroker) Publish(context.Context, *bundle.Bundle, *PublishRequest) (*PublishResult, error) {
	return nil, nil
}

func (s *stubBroker) ValidateSignature(*bundle.Bundle) error { return nil }
func (s *stubBroker) Close() error                          { return nil }

func TestAggregateListings_PartialSuccess(t *testing.T) {
	brokers := []Broker{
		&stubBroker{name: "alpha"},
		&stubBroker{name: "slow", delay: 5 * time.Second},
		&stubBroker{name: "beta"},
	}

	start := time.Now()
	result := AggregateListings(context.Background(), brokers, ListingQuery{Page: 1, PageSize: 10}, 100*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, []string{"alpha", "beta"}, result.Succeeded())
	assert.Equal(t, []string{"slow"}, result.Failed())
	assert.True(t, errors.Is(result.Failures["slow"], context.DeadlineExceeded))

	listings := result.Listings()
	require.Len(t, listings, 2)
	assert.Equal(t, "alpha-1", listings[0].ListingID())
	assert.Equal(t, "beta-1", listings[1].ListingID())
}

func TestAggregateListings_NonCooperativeBroker(t *testing.T) {
	brokers := []Broker{
		&stubBroker{name: "stuck", delay: time.Second, ignoreCtx: true},
		&stubBroker{name: "ok"},
	}

	start := time.Now()
	result := AggregateListings(context.Background(), brokers, ListingQuery{Page: 1, PageSize: 10}, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	assert.Equal(t, []string{"ok"}, result.Succeeded())
	assert.Equal(t, []string{"stuck"}, result.Failed())
}

func TestAggregateListings_ErrorsAreIsolated(t *testing.T) {
	boom := NewBrokerError("upstream 500", nil)
	brokers := []Broker{
		&stubBroker{name: "a"},
		&stubBroker{name: "b", err: boom},
		&stubBroker{name: "c", err: &RateLimitError{Broker: "c", RetryAfter: 30}},
	}

	result := AggregateListings(context.Background(), brokers, ListingQuery{Page: 1, PageSize: 10}, time.Second)
	assert.Equal(t, []string{"a"}, result.Succeeded())
	assert.Equal(t, []string{"b", "c"}, result.Failed())
	assert.ErrorIs(t, result.Failures["b"], ErrBroker)
	assert.True(t, IsRateLimitError(result.Failures["c"]))
}

func TestAggregateListings_Empty(t *testing.T) {
	result := AggregateListings(context.Background(), nil, ListingQuery{Page: 1, PageSize: 10}, time.Second)
	assert.Empty(t, result.Succeeded())
	assert.Empty(t, result.Failed())
	assert.Empty(t, result.Listings())
}
