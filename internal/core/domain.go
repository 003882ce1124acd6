package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// AdjustmentCategory is the system category used for carried-over overspend.
	AdjustmentCategory = "ADJUSTMENT"

	TableCategories   = "categories"
	TableTransactions = "transactions"
	TableBudget       = "budget"
)

type (
	Category struct {
		ID          int64 // 0 means "assign new"
		Name        string
		DisplayName string
		Color       string
		IsSystem    bool
	}

	Transaction struct {
		ID            int64 // 0 means "assign new"
		WeekStartDate string
		Category      string
		Amount        decimal.Decimal // negative for refunds
		IsAdjustment  bool
		CreatedAt     int64 // epoch millis
	}

	// Budget is the stored weekly budget. A pending amount replaces Amount
	// from the week starting PendingFrom.
	Budget struct {
		Amount      decimal.Decimal
		IsSet       bool
		Pending     decimal.Decimal
		PendingFrom string // empty when nothing is pending
	}
)

var (
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStorage             = errors.New("storage error")
	ErrNotFound            = errors.New("not found")

	ErrInvalidWeekStart = errors.New("invalid week start date")
	ErrInvalidYearMonth = errors.New("invalid year-month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty category name")
	ErrEmptyDisplayName = errors.New("empty category display name")
	ErrSystemCategory   = errors.New("system category is read-only")
	ErrCategoryInUse    = errors.New("category is referenced by transactions")
)

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 64 {
		return errors.New("category name too long (max 64 characters)")
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := ValidateWeekStart(t.WeekStartDate); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return ValidateAmount(t.Amount)
}

// NewAdjustment builds an adjustment transaction for the given week.
func NewAdjustment(weekStart string, amount decimal.Decimal) Transaction {
	return Transaction{
		WeekStartDate: weekStart,
		Category:      AdjustmentCategory,
		Amount:        amount,
		IsAdjustment:  true,
		CreatedAt:     NowMillis(),
	}
}

// ValidateBudget accepts a non-negative amount in whole cents. Zero turns
// rollover off.
func ValidateBudget(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: budget %s is negative", ErrInvalidAmount, amount)
	}
	return ValidateAmount(amount)
}

// Effective returns the budget in force, or fallback when none is stored.
func (b Budget) Effective(fallback decimal.Decimal) decimal.Decimal {
	if b.IsSet {
		return b.Amount
	}
	return fallback
}

// ForWeek returns the budget in force during the week starting weekStart,
// counting a pending amount that has not been applied yet.
func (b Budget) ForWeek(weekStart string, fallback decimal.Decimal) decimal.Decimal {
	if b.PendingFrom != "" && b.PendingFrom <= weekStart {
		return b.Pending
	}
	return b.Effective(fallback)
}
