package relationships

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Observer is notified of every query executed through an observed Querier
type Observer interface {
	ObserveQuery(query string, duration time.Duration, err error)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(query string, duration time.Duration, err error)

// ObserveQuery calls f
func (f ObserverFunc) ObserveQuery(query string, duration time.Duration, err error) {
	f(query, duration, err)
}

// Observers fans a query out to several observers
type Observers []Observer

// ObserveQuery notifies every observer in order
func (o Observers) ObserveQuery(query string, duration time.Duration, err error) {
	for _, obs := range o {
		obs.ObserveQuery(query, duration, err)
	}
}

type observedQuerier struct {
	db  Querier
	obs Observer
}

// Observe wraps db so that obs sees every query it executes
func Observe(db Querier, obs Observer) Querier {
	if obs == nil {
		return db
	}
	return &observedQuerier{db: db, obs: obs}
}

func (q *observedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.db.QueryContext(ctx, query, args...)
	q.obs.ObserveQuery(query, time.Since(start), err)
	return rows, err
}

// Counter is an Observer that records executed queries
type Counter struct {
	mu      sync.Mutex
	queries []string
	errors  int
}

// ObserveQuery records the query
func (c *Counter) ObserveQuery(query string, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	if err != nil {
		c.errors++
	}
}

// Count returns the number of queries observed
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// Errors returns the number of failed queries observed
func (c *Counter) Errors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Queries returns the observed queries in execution order
func (c *Counter) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queries))
	copy(out, c.queries)
	return out
}

// Reset forgets every observed query
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = nil
	c.errors = 0
}
