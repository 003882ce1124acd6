package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"weeklytotals/internal/core"
)

// AdjustmentStore is the part of the ledger store that owns adjustments.
type AdjustmentStore interface {
	HasAdjustmentForWeek(ctx context.Context, weekStart string) (bool, error)
	AdjustmentForWeek(ctx context.Context, weekStart string) (*core.Transaction, bool, error)
	InsertAdjustmentIfNotExists(ctx context.Context, t core.Transaction) (int64, bool, error)
}

// Reconciler keeps at most one adjustment per week.
type Reconciler struct {
	store AdjustmentStore
}

func NewReconciler(store AdjustmentStore) *Reconciler {
	return &Reconciler{store: store}
}

func (r *Reconciler) HasAdjustmentForWeek(ctx context.Context, weekStart string) (bool, error) {
	if err := core.ValidateWeekStart(weekStart); err != nil {
		return false, err
	}
	return r.store.HasAdjustmentForWeek(ctx, weekStart)
}

// AdjustmentForWeek returns false when the week has no adjustment.
func (r *Reconciler) AdjustmentForWeek(ctx context.Context, weekStart string) (*core.Transaction, bool, error) {
	if err := core.ValidateWeekStart(weekStart); err != nil {
		return nil, false, err
	}
	return r.store.AdjustmentForWeek(ctx, weekStart)
}

// InsertAdjustmentIfNotExists stores t as the adjustment of its week unless
// one is already there, in which case the existing id is returned and
// inserted is false.
func (r *Reconciler) InsertAdjustmentIfNotExists(ctx context.Context, t core.Transaction) (id int64, inserted bool, err error) {
	t.IsAdjustment = true
	if t.Category == "" {
		t.Category = core.AdjustmentCategory
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = core.NowMillis()
	}
	if err := t.Validate(); err != nil {
		return 0, false, err
	}

	id, inserted, err = r.store.InsertAdjustmentIfNotExists(ctx, t)
	if err != nil {
		return 0, false, fmt.Errorf("insert adjustment for %s: %w", t.WeekStartDate, err)
	}
	return id, inserted, nil
}

// Adjust records amount as the week's adjustment.
func (r *Reconciler) Adjust(ctx context.Context, weekStart string, amount decimal.Decimal) (int64, bool, error) {
	return r.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment(weekStart, amount))
}
