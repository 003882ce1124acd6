package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"weeklytotals/internal/core"
)

// WeekTotals reads weekly totals.
type WeekTotals interface {
	TotalForWeek(ctx context.Context, weekStart string) (decimal.Decimal, error)
}

// BudgetStore keeps the weekly budget and its scheduled change.
type BudgetStore interface {
	Budget(ctx context.Context) (core.Budget, error)
	ApplyPendingBudget(ctx context.Context, weekStart string) (core.Budget, bool, error)
}

// RolloverProcessor carries the previous week's overspend into the current
// week as an adjustment.
type RolloverProcessor struct {
	totals     WeekTotals
	reconciler *Reconciler
	budgets    BudgetStore
	fallback   decimal.Decimal
}

// NewRolloverProcessor returns a processor that compares each week against
// the stored budget, or fallback while none is stored. budgets may be nil. A
// zero budget disables rollover.
func NewRolloverProcessor(totals WeekTotals, reconciler *Reconciler, budgets BudgetStore, fallback decimal.Decimal) *RolloverProcessor {
	return &RolloverProcessor{
		totals:     totals,
		reconciler: reconciler,
		budgets:    budgets,
		fallback:   fallback,
	}
}

// Budget returns the budget in force during the week starting weekStart.
func (p *RolloverProcessor) Budget(ctx context.Context, weekStart string) (decimal.Decimal, error) {
	if p.budgets == nil {
		return p.fallback, nil
	}
	b, err := p.budgets.Budget(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return b.ForWeek(weekStart, p.fallback), nil
}

// Process checks the week containing now. A pending budget due by then is
// applied first; the previous week is still measured against the budget it
// had. Process reports whether an adjustment was created. Running it again
// for the same week is a no-op.
func (p *RolloverProcessor) Process(ctx context.Context, now time.Time) (bool, error) {
	if p.totals == nil || p.reconciler == nil {
		return false, fmt.Errorf("processor not properly initialized")
	}

	current := core.WeekStart(now)
	previous, err := core.PreviousWeekStart(current)
	if err != nil {
		return false, err
	}
	budget, err := p.Budget(ctx, previous)
	if err != nil {
		return false, fmt.Errorf("budget for %s: %w", previous, err)
	}
	if p.budgets != nil {
		if _, _, err := p.budgets.ApplyPendingBudget(ctx, current); err != nil {
			return false, fmt.Errorf("apply pending budget: %w", err)
		}
	}

	if !budget.IsPositive() {
		slog.DebugContext(ctx, "Rollover disabled, no weekly budget")
		return false, nil
	}

	has, err := p.reconciler.HasAdjustmentForWeek(ctx, current)
	if err != nil {
		return false, fmt.Errorf("check adjustment for %s: %w", current, err)
	}
	if has {
		return false, nil
	}

	spent, err := p.totals.TotalForWeek(ctx, previous)
	if err != nil {
		return false, fmt.Errorf("total for %s: %w", previous, err)
	}

	overage := spent.Sub(budget)
	if !overage.IsPositive() {
		slog.InfoContext(ctx, "No overspend to roll over",
			"previous_week", previous,
			"spent", spent.StringFixed(2),
			"budget", budget.StringFixed(2))
		return false, nil
	}

	id, inserted, err := p.reconciler.Adjust(ctx, current, overage)
	if err != nil {
		return false, err
	}

	if inserted {
		slog.InfoContext(ctx, "Rolled overspend into current week",
			"id", id,
			"week", current,
			"previous_week", previous,
			"amount", overage.StringFixed(2))
	}
	return inserted, nil
}
