package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

const (
	categoryColumns    = `id, name, displayName, color, isSystem`
	transactionColumns = `id, weekStartDate, category, amount, isAdjustment, createdAt`
)

const (
	insertCategory = `INSERT OR ABORT INTO categories (id, name, displayName, color, isSystem)
VALUES (nullif(?, 0), ?, ?, ?, ?)`

	updateCategory = `UPDATE OR ABORT categories SET name = ?, displayName = ?, color = ?, isSystem = ?
WHERE id = ?`

	deleteCategory = `DELETE FROM categories WHERE id = ?`

	listCategories = `SELECT ` + categoryColumns + ` FROM categories ORDER BY displayName`

	listUserCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE isSystem = 0 ORDER BY displayName`

	getCategoryByName = `SELECT ` + categoryColumns + ` FROM categories WHERE name = ? LIMIT 1`

	insertTransaction = `INSERT OR ABORT INTO transactions (id, weekStartDate, category, amount, isAdjustment, createdAt)
VALUES (nullif(?, 0), ?, ?, ?, ?, ?)`

	updateTransaction = `UPDATE OR ABORT transactions
SET weekStartDate = ?, category = ?, amount = ?, isAdjustment = ?, createdAt = ?
WHERE id = ?`

	deleteTransaction = `DELETE FROM transactions WHERE id = ?`

	deleteAllTransactions = `DELETE FROM transactions`

	transactionsForWeek = `SELECT ` + transactionColumns + ` FROM transactions
WHERE weekStartDate = ? ORDER BY createdAt DESC, id DESC`

	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	totalForWeek = `SELECT COALESCE(SUM(amount), 0.0) FROM transactions WHERE weekStartDate = ?`

	hasAdjustmentForWeek = `SELECT EXISTS(SELECT 1 FROM transactions WHERE weekStartDate = ? AND isAdjustment = 1)`

	adjustmentForWeek = `SELECT ` + transactionColumns + ` FROM transactions
WHERE weekStartDate = ? AND isAdjustment = 1 LIMIT 1`

	insertAdjustmentIfAbsent = `INSERT INTO transactions (id, weekStartDate, category, amount, isAdjustment, createdAt)
SELECT nullif(?, 0), ?, ?, ?, 1, ?
WHERE NOT EXISTS (SELECT 1 FROM transactions WHERE weekStartDate = ? AND isAdjustment = 1)`

	categoryTotalsForMonth = `SELECT category, SUM(amount) AS total FROM transactions
WHERE substr(weekStartDate, 1, 7) = ? AND isAdjustment = 0
GROUP BY category ORDER BY category`

	categoryTotalsForYear = `SELECT category, SUM(amount) AS total FROM transactions
WHERE substr(weekStartDate, 1, 4) = ? AND isAdjustment = 0
GROUP BY category ORDER BY category`

	distinctYears = `SELECT DISTINCT substr(weekStartDate, 1, 4) AS year FROM transactions ORDER BY year DESC`

	countTransactionsForCategory = `SELECT COUNT(*) FROM transactions WHERE category = ?`

	getBudget = `SELECT amount, pendingAmount, pendingFrom FROM budget WHERE id = 1`

	setBudget = `INSERT INTO budget (id, amount, pendingAmount, pendingFrom) VALUES (1, ?, NULL, NULL)
ON CONFLICT(id) DO UPDATE SET amount = excluded.amount, pendingAmount = NULL, pendingFrom = NULL`

	setPendingBudget = `INSERT INTO budget (id, pendingAmount, pendingFrom) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET pendingAmount = excluded.pendingAmount, pendingFrom = excluded.pendingFrom`

	applyPendingBudget = `UPDATE budget SET amount = pendingAmount, pendingAmount = NULL, pendingFrom = NULL
WHERE id = 1 AND pendingFrom IS NOT NULL AND pendingFrom <= ?`
)

type categoryRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	DisplayName string `db:"displayName"`
	Color       string `db:"color"`
	IsSystem    bool   `db:"isSystem"`
}

type transactionRow struct {
	ID            int64   `db:"id"`
	WeekStartDate string  `db:"weekStartDate"`
	Category      string  `db:"category"`
	Amount        float64 `db:"amount"`
	IsAdjustment  bool    `db:"isAdjustment"`
	CreatedAt     int64   `db:"createdAt"`
}

type budgetRow struct {
	Amount        sql.NullFloat64 `db:"amount"`
	PendingAmount sql.NullFloat64 `db:"pendingAmount"`
	PendingFrom   sql.NullString  `db:"pendingFrom"`
}

type categoryTotalRow struct {
	Category string  `db:"category"`
	Total    float64 `db:"total"`
}

// Queries runs the ledger's SQL against a pool or a transaction.
type Queries struct {
	db sqlx.ExtContext
}

func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{db: tx}
}

func (q *Queries) InsertCategory(ctx context.Context, c categoryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertCategory, c.ID, c.Name, c.DisplayName, c.Color, boolToInt(c.IsSystem))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateCategory(ctx context.Context, c categoryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, c.DisplayName, c.Color, boolToInt(c.IsSystem), c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListCategories(ctx context.Context, userOnly bool) ([]categoryRow, error) {
	query := listCategories
	if userOnly {
		query = listUserCategories
	}
	var rows []categoryRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *Queries) GetCategoryByName(ctx context.Context, name string) (categoryRow, error) {
	var row categoryRow
	err := sqlx.GetContext(ctx, q.db, &row, getCategoryByName, name)
	return row, err
}

func (q *Queries) InsertTransaction(ctx context.Context, t transactionRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction,
		t.ID, t.WeekStartDate, t.Category, t.Amount, boolToInt(t.IsAdjustment), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateTransaction(ctx context.Context, t transactionRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.WeekStartDate, t.Category, t.Amount, boolToInt(t.IsAdjustment), t.CreatedAt, t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteAllTransactions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAllTransactions)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) TransactionsForWeek(ctx context.Context, weekStart string) ([]transactionRow, error) {
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, transactionsForWeek, weekStart); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (transactionRow, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q.db, &row, getTransaction, id)
	return row, err
}

func (q *Queries) TotalForWeek(ctx context.Context, weekStart string) (float64, error) {
	var total float64
	err := sqlx.GetContext(ctx, q.db, &total, totalForWeek, weekStart)
	return total, err
}

func (q *Queries) HasAdjustmentForWeek(ctx context.Context, weekStart string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.db, &exists, hasAdjustmentForWeek, weekStart)
	return exists, err
}

func (q *Queries) AdjustmentForWeek(ctx context.Context, weekStart string) (transactionRow, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q.db, &row, adjustmentForWeek, weekStart)
	return row, err
}

// InsertAdjustmentIfAbsent returns the new row id, or 0 when the week already
// has an adjustment.
func (q *Queries) InsertAdjustmentIfAbsent(ctx context.Context, t transactionRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertAdjustmentIfAbsent,
		t.ID, t.WeekStartDate, t.Category, t.Amount, t.CreatedAt, t.WeekStartDate)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) CategoryTotalsForMonth(ctx context.Context, yearMonth string) ([]categoryTotalRow, error) {
	var rows []categoryTotalRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, categoryTotalsForMonth, yearMonth); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *Queries) CategoryTotalsForYear(ctx context.Context, year string) ([]categoryTotalRow, error) {
	var rows []categoryTotalRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, categoryTotalsForYear, year); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *Queries) DistinctYears(ctx context.Context) ([]string, error) {
	var years []string
	if err := sqlx.SelectContext(ctx, q.db, &years, distinctYears); err != nil {
		return nil, err
	}
	return years, nil
}

func (q *Queries) CountTransactionsForCategory(ctx context.Context, category string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countTransactionsForCategory, category)
	return n, err
}

func (q *Queries) GetBudget(ctx context.Context) (budgetRow, error) {
	var row budgetRow
	err := sqlx.GetContext(ctx, q.db, &row, getBudget)
	return row, err
}

func (q *Queries) SetBudget(ctx context.Context, amount float64) error {
	_, err := q.db.ExecContext(ctx, setBudget, amount)
	return err
}

func (q *Queries) SetPendingBudget(ctx context.Context, amount float64, from string) error {
	_, err := q.db.ExecContext(ctx, setPendingBudget, amount, from)
	return err
}

func (q *Queries) ApplyPendingBudget(ctx context.Context, weekStart string) (int64, error) {
	res, err := q.db.ExecContext(ctx, applyPendingBudget, weekStart)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
