package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"weeklytotals/internal/core"
)

// memLedger is an in-memory ledger store for service tests.
type memLedger struct {
	mu           sync.Mutex
	nextID       int64
	categories   map[string]core.Category
	transactions []core.Transaction
	calls        map[string]int
	budget       core.Budget
	err          error
}

func newMemLedger() *memLedger {
	l := &memLedger{
		categories: make(map[string]core.Category),
		calls:      make(map[string]int),
	}
	for _, c := range []core.Category{
		{Name: "GROCERY", DisplayName: "Grocery"},
		{Name: "GAS", DisplayName: "Gas"},
		{Name: core.AdjustmentCategory, DisplayName: "Adjustment", IsSystem: true},
	} {
		l.nextID++
		c.ID = l.nextID
		l.categories[c.Name] = c
	}
	return l
}

func (l *memLedger) called(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *memLedger) add(week, category string, amount string, adjustment bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.transactions = append(l.transactions, core.Transaction{
		ID:            l.nextID,
		WeekStartDate: week,
		Category:      category,
		Amount:        decimal.RequireFromString(amount),
		IsAdjustment:  adjustment,
	})
}

func (l *memLedger) CategoryTotalsForMonth(_ context.Context, yearMonth string) ([]core.CategoryTotal, error) {
	return l.rollup("month", yearMonth)
}

func (l *memLedger) CategoryTotalsForYear(_ context.Context, year string) ([]core.CategoryTotal, error) {
	return l.rollup("year", year)
}

func (l *memLedger) rollup(op, prefix string) ([]core.CategoryTotal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[op]++
	if l.err != nil {
		return nil, l.err
	}

	sums := map[string]decimal.Decimal{}
	for _, t := range l.transactions {
		if t.IsAdjustment || !strings.HasPrefix(t.WeekStartDate, prefix) {
			continue
		}
		sums[t.Category] = sums[t.Category].Add(t.Amount)
	}
	out := make([]core.CategoryTotal, 0, len(sums))
	for c, s := range sums {
		out = append(out, core.CategoryTotal{Category: c, Total: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (l *memLedger) TotalForWeek(_ context.Context, weekStart string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["week"]++
	if l.err != nil {
		return decimal.Zero, l.err
	}

	total := decimal.Zero
	for _, t := range l.transactions {
		if t.WeekStartDate == weekStart {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (l *memLedger) HasAdjustmentForWeek(ctx context.Context, weekStart string) (bool, error) {
	_, ok, err := l.AdjustmentForWeek(ctx, weekStart)
	return ok, err
}

func (l *memLedger) AdjustmentForWeek(_ context.Context, weekStart string) (*core.Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	for _, t := range l.transactions {
		if t.IsAdjustment && t.WeekStartDate == weekStart {
			t := t
			return &t, true, nil
		}
	}
	return nil, false, nil
}

func (l *memLedger) InsertAdjustmentIfNotExists(_ context.Context, t core.Transaction) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["adjust"]++
	if l.err != nil {
		return 0, false, l.err
	}
	for _, existing := range l.transactions {
		if existing.IsAdjustment && existing.WeekStartDate == t.WeekStartDate {
			return existing.ID, false, nil
		}
	}
	l.nextID++
	t.ID = l.nextID
	l.transactions = append(l.transactions, t)
	return t.ID, true, nil
}

func (l *memLedger) InsertCategory(_ context.Context, c core.Category) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.categories[c.Name]; ok {
		return 0, core.ErrConstraintViolation
	}
	l.nextID++
	c.ID = l.nextID
	l.categories[c.Name] = c
	return c.ID, nil
}

func (l *memLedger) UpdateCategory(_ context.Context, c core.Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.categories[c.Name]; !ok {
		return core.ErrNotFound
	}
	l.categories[c.Name] = c
	return nil
}

func (l *memLedger) DeleteCategoryIfUnused(_ context.Context, c core.Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.categories[c.Name]; !ok {
		return core.ErrNotFound
	}
	for _, t := range l.transactions {
		if t.Category == c.Name {
			return core.ErrCategoryInUse
		}
	}
	delete(l.categories, c.Name)
	return nil
}

func (l *memLedger) GetCategoryByName(_ context.Context, name string) (*core.Category, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.categories[name]
	if !ok {
		return nil, false, nil
	}
	return &c, true, nil
}

func (l *memLedger) ListCategories(_ context.Context) ([]core.Category, error) {
	return l.list(true), nil
}

func (l *memLedger) ListUserCategories(_ context.Context) ([]core.Category, error) {
	return l.list(false), nil
}

func (l *memLedger) list(includeSystem bool) []core.Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.Category, 0, len(l.categories))
	for _, c := range l.categories {
		if c.IsSystem && !includeSystem {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

func (l *memLedger) Budget(_ context.Context) (core.Budget, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return core.Budget{}, l.err
	}
	return l.budget, nil
}

func (l *memLedger) ApplyPendingBudget(_ context.Context, weekStart string) (core.Budget, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["apply budget"]++
	if l.err != nil {
		return core.Budget{}, false, l.err
	}
	if l.budget.PendingFrom == "" || l.budget.PendingFrom > weekStart {
		return l.budget, false, nil
	}
	l.budget = core.Budget{Amount: l.budget.Pending, IsSet: true}
	return l.budget, true, nil
}
