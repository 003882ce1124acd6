package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"weeklytotals/internal/core"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

// ChangeNotifier receives the set of tables touched by each committed write.
type ChangeNotifier interface {
	Notify(ctx context.Context, tables ...string)
}

type Option func(*SQLiteRepository)

// WithNotifier registers the notifier that is told about committed writes.
func WithNotifier(n ChangeNotifier) Option {
	return func(r *SQLiteRepository) { r.notifier = n }
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(r *SQLiteRepository) { r.busyTimeout = d }
}

// SQLiteRepository is the ledger store. Writes are serialised by writeMu and run
// in BEGIN IMMEDIATE transactions; reads go straight to the pool.
type SQLiteRepository struct {
	db          *sqlx.DB
	queries     *Queries
	notifier    ChangeNotifier
	busyTimeout time.Duration

	writeMu sync.Mutex
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	repo := &SQLiteRepository{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(repo)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so every connection sees the schema
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Open("sqlite", dsn(dbPath, repo.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo.db = db
	repo.queries = New(db)
	return repo, nil
}

func dsn(dbPath string, busyTimeout time.Duration) string {
	v := url.Values{}
	v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "synchronous(NORMAL)")
	v.Set("_txlock", "immediate")
	return dbPath + "?" + v.Encode()
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// write runs fn in one transaction under the writer lock. fn reports whether it
// changed anything; tables are notified only after a commit that did.
func (r *SQLiteRepository) write(ctx context.Context, op string, tables []string, fn func(q *Queries) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.writeMu.Lock()
	changed, err := r.inTx(context.WithoutCancel(ctx), fn)
	r.writeMu.Unlock()
	if err != nil {
		return classify(op, err)
	}

	if changed && r.notifier != nil {
		r.notifier.Notify(ctx, tables...)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) (bool, error)) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}

	changed, err := fn(r.queries.WithTx(tx))
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return changed, nil
}

// Categories

func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}

	var id int64
	err := r.write(ctx, "insert category", []string{core.TableCategories}, func(q *Queries) (bool, error) {
		var err error
		id, err = q.InsertCategory(ctx, toCategoryRow(c))
		return err == nil, err
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Category saved", "id", id, "name", c.Name)
	return id, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	return r.write(ctx, "update category", []string{core.TableCategories}, func(q *Queries) (bool, error) {
		n, err := q.UpdateCategory(ctx, toCategoryRow(c))
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
		}
		return true, nil
	})
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, c core.Category) error {
	return r.write(ctx, "delete category", []string{core.TableCategories}, func(q *Queries) (bool, error) {
		n, err := q.DeleteCategory(ctx, c.ID)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
		}
		return true, nil
	})
}

// DeleteCategoryIfUnused deletes c unless a transaction still references it.
// The count and the delete share one write transaction.
func (r *SQLiteRepository) DeleteCategoryIfUnused(ctx context.Context, c core.Category) error {
	return r.write(ctx, "delete category", []string{core.TableCategories}, func(q *Queries) (bool, error) {
		used, err := q.CountTransactionsForCategory(ctx, c.Name)
		if err != nil {
			return false, err
		}
		if used > 0 {
			return false, fmt.Errorf("category %s has %d transactions: %w", c.Name, used, core.ErrCategoryInUse)
		}
		n, err := q.DeleteCategory(ctx, c.ID)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
		}
		return true, nil
	})
}

// GetCategoryByName returns false when no category has that name.
func (r *SQLiteRepository) GetCategoryByName(ctx context.Context, name string) (*core.Category, bool, error) {
	row, err := r.queries.GetCategoryByName(ctx, name)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get category by name", err)
	}
	c := fromCategoryRow(row)
	return &c, true, nil
}

// ListCategories returns every category ordered by display name.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	return r.listCategories(ctx, false)
}

// ListUserCategories returns the non-system categories ordered by display name.
func (r *SQLiteRepository) ListUserCategories(ctx context.Context) ([]core.Category, error) {
	return r.listCategories(ctx, true)
}

func (r *SQLiteRepository) listCategories(ctx context.Context, userOnly bool) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, userOnly)
	if err != nil {
		return nil, classify("list categories", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromCategoryRow(row))
	}
	return out, nil
}

// Transactions

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	var id int64
	err := r.write(ctx, "insert transaction", []string{core.TableTransactions}, func(q *Queries) (bool, error) {
		var err error
		id, err = q.InsertTransaction(ctx, toTransactionRow(t))
		return err == nil, err
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"week_start", t.WeekStartDate,
		"category", t.Category,
		"amount", t.Amount.StringFixed(2),
		"adjustment", t.IsAdjustment)
	return id, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	return r.write(ctx, "update transaction", []string{core.TableTransactions}, func(q *Queries) (bool, error) {
		n, err := q.UpdateTransaction(ctx, toTransactionRow(t))
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
		}
		return true, nil
	})
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, t core.Transaction) error {
	return r.write(ctx, "delete transaction", []string{core.TableTransactions}, func(q *Queries) (bool, error) {
		n, err := q.DeleteTransaction(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
		}
		return true, nil
	})
}

// DeleteAllTransactions removes every transaction. Categories are kept.
func (r *SQLiteRepository) DeleteAllTransactions(ctx context.Context) error {
	var removed int64
	err := r.write(ctx, "delete all transactions", []string{core.TableTransactions}, func(q *Queries) (bool, error) {
		var err error
		removed, err = q.DeleteAllTransactions(ctx)
		return err == nil, err
	})
	if err != nil {
		return err
	}

	slog.WarnContext(ctx, "All transactions deleted", "count", removed)
	return nil
}

// TransactionsForWeek returns the week's transactions, newest first.
func (r *SQLiteRepository) TransactionsForWeek(ctx context.Context, weekStart string) ([]core.Transaction, error) {
	rows, err := r.queries.TransactionsForWeek(ctx, weekStart)
	if err != nil {
		return nil, classify("transactions for week", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromTransactionRow(row))
	}
	return out, nil
}

// GetTransaction looks a transaction up by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, bool, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get transaction", err)
	}
	t := fromTransactionRow(row)
	return &t, true, nil
}

// TotalForWeek sums every amount of the week, adjustments included.
func (r *SQLiteRepository) TotalForWeek(ctx context.Context, weekStart string) (decimal.Decimal, error) {
	total, err := r.queries.TotalForWeek(ctx, weekStart)
	if err != nil {
		return decimal.Zero, classify("total for week", err)
	}
	return toAmount(total), nil
}

// DistinctYears lists the years that have transactions, newest first.
func (r *SQLiteRepository) DistinctYears(ctx context.Context) ([]string, error) {
	years, err := r.queries.DistinctYears(ctx)
	if err != nil {
		return nil, classify("distinct years", err)
	}
	if years == nil {
		years = []string{}
	}
	return years, nil
}

func (r *SQLiteRepository) CountTransactionsForCategory(ctx context.Context, category string) (int64, error) {
	n, err := r.queries.CountTransactionsForCategory(ctx, category)
	if err != nil {
		return 0, classify("count transactions for category", err)
	}
	return n, nil
}

// Rollups

// CategoryTotalsForMonth sums non-adjustment amounts per category for weeks
// starting in yearMonth ("YYYY-MM").
func (r *SQLiteRepository) CategoryTotalsForMonth(ctx context.Context, yearMonth string) ([]core.CategoryTotal, error) {
	rows, err := r.queries.CategoryTotalsForMonth(ctx, yearMonth)
	if err != nil {
		return nil, classify("category totals for month", err)
	}
	return fromTotalRows(rows), nil
}

// CategoryTotalsForYear sums non-adjustment amounts per category for weeks
// starting in year ("YYYY").
func (r *SQLiteRepository) CategoryTotalsForYear(ctx context.Context, year string) ([]core.CategoryTotal, error) {
	rows, err := r.queries.CategoryTotalsForYear(ctx, year)
	if err != nil {
		return nil, classify("category totals for year", err)
	}
	return fromTotalRows(rows), nil
}

// Adjustments

func (r *SQLiteRepository) HasAdjustmentForWeek(ctx context.Context, weekStart string) (bool, error) {
	exists, err := r.queries.HasAdjustmentForWeek(ctx, weekStart)
	if err != nil {
		return false, classify("has adjustment for week", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) AdjustmentForWeek(ctx context.Context, weekStart string) (*core.Transaction, bool, error) {
	row, err := r.queries.AdjustmentForWeek(ctx, weekStart)
	if isNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("adjustment for week", err)
	}
	t := fromTransactionRow(row)
	return &t, true, nil
}

// InsertAdjustmentIfNotExists inserts t as the week's adjustment unless the
// week already has one. The check and the insert share one write transaction.
// When nothing is inserted it returns the existing adjustment's id.
func (r *SQLiteRepository) InsertAdjustmentIfNotExists(ctx context.Context, t core.Transaction) (int64, bool, error) {
	t.IsAdjustment = true
	if err := t.Validate(); err != nil {
		return 0, false, fmt.Errorf("insert adjustment: %w", err)
	}

	var (
		id       int64
		inserted bool
	)
	err := r.write(ctx, "insert adjustment", []string{core.TableTransactions}, func(q *Queries) (bool, error) {
		newID, err := q.InsertAdjustmentIfAbsent(ctx, toTransactionRow(t))
		if err != nil {
			return false, err
		}
		if newID != 0 {
			id, inserted = newID, true
			return true, nil
		}

		existing, err := q.AdjustmentForWeek(ctx, t.WeekStartDate)
		if err != nil {
			return false, err
		}
		id = existing.ID
		return false, nil
	})
	if err != nil {
		return 0, false, err
	}

	if inserted {
		slog.InfoContext(ctx, "Adjustment created",
			"id", id,
			"week_start", t.WeekStartDate,
			"amount", t.Amount.StringFixed(2))
	}
	return id, inserted, nil
}

// Budget

// Budget returns the stored budget. IsSet is false until one is saved.
func (r *SQLiteRepository) Budget(ctx context.Context) (core.Budget, error) {
	row, err := r.queries.GetBudget(ctx)
	if isNoRows(err) {
		return core.Budget{}, nil
	}
	if err != nil {
		return core.Budget{}, classify("get budget", err)
	}
	return fromBudgetRow(row), nil
}

// SetBudget replaces the budget right away and drops any pending change.
func (r *SQLiteRepository) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	if err := core.ValidateBudget(amount); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	err := r.write(ctx, "set budget", []string{core.TableBudget}, func(q *Queries) (bool, error) {
		return true, q.SetBudget(ctx, amount.InexactFloat64())
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Budget set", "amount", amount.StringFixed(2))
	return nil
}

// SetPendingBudget schedules amount to become the budget from the week
// starting weekStart.
func (r *SQLiteRepository) SetPendingBudget(ctx context.Context, amount decimal.Decimal, weekStart string) error {
	if err := core.ValidateBudget(amount); err != nil {
		return fmt.Errorf("set pending budget: %w", err)
	}
	if err := core.ValidateWeekStart(weekStart); err != nil {
		return fmt.Errorf("set pending budget: %w", err)
	}
	err := r.write(ctx, "set pending budget", []string{core.TableBudget}, func(q *Queries) (bool, error) {
		return true, q.SetPendingBudget(ctx, amount.InexactFloat64(), weekStart)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Budget change scheduled", "amount", amount.StringFixed(2), "from", weekStart)
	return nil
}

// ApplyPendingBudget promotes a pending budget whose first week is on or
// before weekStart. It returns the budget as stored afterwards and whether a
// pending amount was applied.
func (r *SQLiteRepository) ApplyPendingBudget(ctx context.Context, weekStart string) (core.Budget, bool, error) {
	var (
		b       core.Budget
		applied bool
	)
	err := r.write(ctx, "apply pending budget", []string{core.TableBudget}, func(q *Queries) (bool, error) {
		n, err := q.ApplyPendingBudget(ctx, weekStart)
		if err != nil {
			return false, err
		}
		applied = n > 0

		row, err := q.GetBudget(ctx)
		if err != nil && !isNoRows(err) {
			return false, err
		}
		b = fromBudgetRow(row)
		return applied, nil
	})
	if err != nil {
		return core.Budget{}, false, err
	}

	if applied {
		slog.InfoContext(ctx, "Pending budget applied", "week_start", weekStart, "amount", b.Amount.StringFixed(2))
	}
	return b, applied, nil
}

// Row conversions

func toCategoryRow(c core.Category) categoryRow {
	return categoryRow{
		ID:          c.ID,
		Name:        c.Name,
		DisplayName: c.DisplayName,
		Color:       c.Color,
		IsSystem:    c.IsSystem,
	}
}

func fromCategoryRow(row categoryRow) core.Category {
	return core.Category{
		ID:          row.ID,
		Name:        row.Name,
		DisplayName: row.DisplayName,
		Color:       row.Color,
		IsSystem:    row.IsSystem,
	}
}

func toTransactionRow(t core.Transaction) transactionRow {
	return transactionRow{
		ID:            t.ID,
		WeekStartDate: t.WeekStartDate,
		Category:      t.Category,
		Amount:        t.Amount.InexactFloat64(),
		IsAdjustment:  t.IsAdjustment,
		CreatedAt:     t.CreatedAt,
	}
}

func fromTransactionRow(row transactionRow) core.Transaction {
	return core.Transaction{
		ID:            row.ID,
		WeekStartDate: row.WeekStartDate,
		Category:      row.Category,
		Amount:        toAmount(row.Amount),
		IsAdjustment:  row.IsAdjustment,
		CreatedAt:     row.CreatedAt,
	}
}

func fromBudgetRow(row budgetRow) core.Budget {
	b := core.Budget{
		IsSet:       row.Amount.Valid,
		PendingFrom: row.PendingFrom.String,
	}
	if row.Amount.Valid {
		b.Amount = toAmount(row.Amount.Float64)
	}
	if row.PendingAmount.Valid {
		b.Pending = toAmount(row.PendingAmount.Float64)
	}
	return b
}

func fromTotalRows(rows []categoryTotalRow) []core.CategoryTotal {
	out := make([]core.CategoryTotal, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CategoryTotal{Category: row.Category, Total: toAmount(row.Total)})
	}
	return out
}

// REAL sums drift in the last binary digits; amounts are cents.
func toAmount(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
