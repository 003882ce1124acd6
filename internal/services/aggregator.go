package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"weeklytotals/internal/cache"
	"weeklytotals/internal/core"
	"weeklytotals/internal/notify"
)

// TotalsReader is the part of the ledger store the Aggregator reads from.
type TotalsReader interface {
	CategoryTotalsForMonth(ctx context.Context, yearMonth string) ([]core.CategoryTotal, error)
	CategoryTotalsForYear(ctx context.Context, year string) ([]core.CategoryTotal, error)
	TotalForWeek(ctx context.Context, weekStart string) (decimal.Decimal, error)
}

// ChangeSource delivers committed table changes.
type ChangeSource interface {
	Subscribe(tables []string, fn func(notify.Change)) (unsubscribe func())
}

type AggregatorOptions struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Aggregator computes rollups and weekly totals. Results are cached until the
// next committed write to the transactions table.
type Aggregator struct {
	store  TotalsReader
	totals *cache.LRUCache[[]core.CategoryTotal]
	weekly *cache.LRUCache[decimal.Decimal]
	group  singleflight.Group

	// generation changes on every invalidation; it is part of every cache and
	// flight key so a computation that raced a write is never served.
	generation atomic.Uint64

	unsubscribe func()
}

func NewAggregator(store TotalsReader, changes ChangeSource, opts AggregatorOptions) *Aggregator {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}

	a := &Aggregator{
		store:  store,
		totals: cache.NewLRUCache[[]core.CategoryTotal](opts.CacheSize, opts.CacheTTL),
		weekly: cache.NewLRUCache[decimal.Decimal](opts.CacheSize, opts.CacheTTL),
	}
	if changes != nil {
		a.unsubscribe = changes.Subscribe([]string{core.TableTransactions}, func(notify.Change) {
			a.Invalidate()
		})
	}
	return a
}

// Caches exposes the result caches so a cache.Manager can sweep them.
func (a *Aggregator) Caches() []cache.Cleaner {
	return []cache.Cleaner{a.totals, a.weekly}
}

// Invalidate drops every cached result.
func (a *Aggregator) Invalidate() {
	a.generation.Add(1)
	a.totals.Purge()
	a.weekly.Purge()
}

// Close stops listening for changes.
func (a *Aggregator) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// CategoryTotalsForMonth sums non-adjustment transactions per category for the
// weeks starting in yearMonth ("YYYY-MM"). Categories without transactions are
// absent from the result.
func (a *Aggregator) CategoryTotalsForMonth(ctx context.Context, yearMonth string) ([]core.CategoryTotal, error) {
	if err := core.ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	return a.rollup(ctx, "month", yearMonth, a.store.CategoryTotalsForMonth)
}

// CategoryTotalsForYear sums non-adjustment transactions per category for the
// weeks starting in year ("YYYY").
func (a *Aggregator) CategoryTotalsForYear(ctx context.Context, year string) ([]core.CategoryTotal, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	return a.rollup(ctx, "year", year, a.store.CategoryTotalsForYear)
}

// WeeklyTotal returns the sum of every transaction of the week, adjustments
// included.
func (a *Aggregator) WeeklyTotal(ctx context.Context, weekStart string) (decimal.Decimal, error) {
	if err := core.ValidateWeekStart(weekStart); err != nil {
		return decimal.Zero, err
	}

	key := a.key("week", weekStart)
	if total, ok := a.weekly.Get(key); ok {
		return total, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		total, err := a.store.TotalForWeek(ctx, weekStart)
		if err != nil {
			return nil, err
		}
		a.weekly.Set(key, total)
		return total, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("weekly total %s: %w", weekStart, err)
	}
	return v.(decimal.Decimal), nil
}

func (a *Aggregator) rollup(ctx context.Context, period, value string,
	load func(context.Context, string) ([]core.CategoryTotal, error)) ([]core.CategoryTotal, error) {
	key := a.key(period, value)
	if totals, ok := a.totals.Get(key); ok {
		return clone(totals), nil
	}

	v, err, shared := a.group.Do(key, func() (any, error) {
		totals, err := load(ctx, value)
		if err != nil {
			return nil, err
		}
		a.totals.Set(key, totals)
		return totals, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s totals %s: %w", period, value, err)
	}

	slog.DebugContext(ctx, "Rollup computed", "period", period, "value", value, "shared", shared)
	return clone(v.([]core.CategoryTotal)), nil
}

func (a *Aggregator) key(period, value string) string {
	return fmt.Sprintf("%d/%s/%s", a.generation.Load(), period, value)
}

func clone(totals []core.CategoryTotal) []core.CategoryTotal {
	out := make([]core.CategoryTotal, len(totals))
	copy(out, totals)
	return out
}
