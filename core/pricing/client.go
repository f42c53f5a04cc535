package pricing

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"plancost/core/plan"
	"plancost/internal/errors"
	"plancost/internal/logging"
)

// Options configures a pricing client
type Options struct {
	// Source performs outbound lookups
	Source Source

	// CacheEnabled turns quote caching on
	CacheEnabled bool

	// CachePolicy governs quote retention
	CachePolicy CachePolicy

	// Offline serves cached quotes only; expired entries are served
	// re-tagged Cached instead of dialing out
	Offline bool

	// Retry is the lookup backoff policy
	Retry RetryPolicy

	// Breaker is the circuit breaker policy
	Breaker BreakerPolicy

	// MaxInFlight bounds concurrent lookups in ResolveBatch
	MaxInFlight int

	// RequestTimeout bounds a single outbound call
	RequestTimeout time.Duration

	// OnRetry, when set, is invoked with the service code before each
	// backoff sleep
	OnRetry func(service string)
}

// inflightCall is the shared handle for one in-flight lookup. Waiters
// block on done; quote and err are settled before it closes.
type inflightCall struct {
	done  chan struct{}
	quote PriceQuote
	err   error
}

// Client resolves unit prices with caching, single-flight
// coordination, retry with backoff, and circuit breaking. It is safe
// for concurrent use.
type Client struct {
	source         Source
	cache          *Cache
	cacheEnabled   bool
	offline        bool
	retry          RetryPolicy
	breaker        *Breaker
	maxInFlight    int
	requestTimeout time.Duration
	onRetry        func(service string)
	logger         *zap.Logger

	mu       sync.Mutex
	inflight map[PriceKey]*inflightCall

	resolves    atomic.Int64
	cacheHits   atomic.Int64
	staleServes atomic.Int64
	lookups     atomic.Int64
	failures    atomic.Int64
}

// Stats is a point-in-time snapshot of client counters
type Stats struct {
	Resolves       int64  `json:"resolves"`
	CacheHits      int64  `json:"cache_hits"`
	StaleServes    int64  `json:"stale_serves"`
	Lookups        int64  `json:"lookups"`
	LookupFailures int64  `json:"lookup_failures"`
	CacheSize      int    `json:"cache_size"`
	BreakerState   string `json:"breaker_state"`
}

// NewClient creates a pricing client over the given source
func NewClient(opts Options) *Client {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Client{
		source:         opts.Source,
		cache:          NewCache(opts.CachePolicy),
		cacheEnabled:   opts.CacheEnabled,
		offline:        opts.Offline,
		retry:          opts.Retry.normalized(),
		breaker:        NewBreaker(opts.Breaker),
		maxInFlight:    maxInFlight,
		requestTimeout: opts.RequestTimeout,
		onRetry:        opts.OnRetry,
		logger:         logging.Named("pricing"),
		inflight:       make(map[PriceKey]*inflightCall),
	}
}

// Resolve returns the unit price quote for a resource
func (c *Client) Resolve(ctx context.Context, r plan.Resource) (PriceQuote, error) {
	return c.resolveKey(ctx, KeyFor(r), r.PricingSpec())
}

// ResolveBatch resolves all resources through a bounded worker pool
// and returns one Result per resource id. Resources sharing a cache
// key collapse to a single outbound lookup. The result map always
// covers every input resource; on cancellation, undispatched resources
// carry the context error.
func (c *Client) ResolveBatch(ctx context.Context, resources []plan.Resource) map[string]Result {
	results := make([]Result, len(resources))

	workers := c.maxInFlight
	if workers > len(resources) {
		workers = len(resources)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				quote, err := c.Resolve(ctx, resources[i])
				results[i] = Result{Quote: quote, Err: err}
			}
		}()
	}

	cancelled := -1
feed:
	for i := range resources {
		select {
		case <-ctx.Done():
			cancelled = i
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled >= 0 {
		for i := cancelled; i < len(resources); i++ {
			results[i] = Result{Err: ctx.Err()}
		}
	}

	out := make(map[string]Result, len(resources))
	for i, r := range resources {
		out[r.ID] = results[i]
	}
	return out
}

// resolveKey serves a quote from cache or joins/leads the single
// in-flight lookup for the key.
func (c *Client) resolveKey(ctx context.Context, key PriceKey, spec map[string]string) (PriceQuote, error) {
	c.resolves.Add(1)

	if c.cacheEnabled {
		if quote, ok := c.cache.Get(key); ok {
			c.cacheHits.Add(1)
			return quote, nil
		}
	}

	if c.offline {
		if c.cacheEnabled {
			if quote, ok := c.cache.GetStale(key); ok {
				c.staleServes.Add(1)
				c.logger.Debug("serving stale quote", zap.String("key", key.String()))
				return quote, nil
			}
		}
		return PriceQuote{}, errors.PricingUnavailable(fmt.Sprintf("offline and no cached price for %s", key), nil)
	}

	c.mu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.quote, call.err
		case <-ctx.Done():
			return PriceQuote{}, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.quote, call.err = c.fetch(ctx, key, spec)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)

	return call.quote, call.err
}

// fetch performs the retried outbound lookup for one key. The circuit
// breaker sees the whole fetch as one unit; NOT_FOUND answers close it
// because the provider did respond.
func (c *Client) fetch(ctx context.Context, key PriceKey, spec map[string]string) (PriceQuote, error) {
	// A lookup completed between the cache miss and taking leadership
	if c.cacheEnabled {
		if quote, ok := c.cache.Get(key); ok {
			return quote, nil
		}
	}

	if err := c.breaker.Allow(); err != nil {
		return PriceQuote{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return PriceQuote{}, err
		}

		price, err := c.lookup(ctx, key, spec)
		if err == nil {
			quote := PriceQuote{
				Key:        key,
				UnitPrice:  price.Amount,
				Unit:       price.Unit,
				Currency:   price.Currency,
				ResolvedAt: time.Now().UTC(),
				Source:     SourceLive,
			}
			if c.cacheEnabled {
				c.cache.Put(quote)
			}
			c.breaker.Success()
			return quote, nil
		}
		lastErr = err

		// Caller cancellation is not a provider failure; leave the
		// breaker unit unsettled.
		if ctx.Err() != nil {
			return PriceQuote{}, ctx.Err()
		}

		if errors.IsType(err, errors.TypeNotFound) {
			c.breaker.Success()
			return PriceQuote{}, errors.PricingUnavailable(fmt.Sprintf("no price for %s", key), err)
		}
		if errors.IsType(err, errors.TypeAuth) {
			return PriceQuote{}, err
		}
		if !errors.Retryable(err) {
			c.breaker.Failure()
			c.failures.Add(1)
			return PriceQuote{}, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		if c.onRetry != nil {
			c.onRetry(key.Service)
		}
		delay := c.retry.Delay(attempt)
		c.logger.Debug("lookup failed, backing off",
			zap.String("key", key.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return PriceQuote{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	c.breaker.Failure()
	c.failures.Add(1)
	return PriceQuote{}, errors.PricingUnavailable(
		fmt.Sprintf("lookup for %s failed after %d attempts", key, c.retry.MaxAttempts), lastErr)
}

// lookup performs one outbound call under the per-call timeout. A
// timeout of the call itself (parent still live) comes back as a
// retryable NETWORK_ERROR.
func (c *Client) lookup(ctx context.Context, key PriceKey, spec map[string]string) (Price, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	c.lookups.Add(1)
	price, err := c.source.Lookup(ctx, key.Service, key.Region, spec)
	if err != nil && stderrors.Is(err, context.DeadlineExceeded) {
		return Price{}, errors.Network("lookup timed out", err)
	}
	return price, err
}

// Stats returns a snapshot of the client counters
func (c *Client) Stats() Stats {
	return Stats{
		Resolves:       c.resolves.Load(),
		CacheHits:      c.cacheHits.Load(),
		StaleServes:    c.staleServes.Load(),
		Lookups:        c.lookups.Load(),
		LookupFailures: c.failures.Load(),
		CacheSize:      c.cache.Len(),
		BreakerState:   c.breaker.State(),
	}
}

// Prime inserts a quote into the cache. Used to seed tests and to
// restore persisted quotes.
func (c *Client) Prime(quote PriceQuote) {
	c.cache.Put(quote)
}
