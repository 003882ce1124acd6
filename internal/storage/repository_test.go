package storage_test

import (
	"context"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"weeklytotals/internal/core"
	"weeklytotals/internal/storage"
)

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]string
}

func (n *recordingNotifier) Notify(_ context.Context, tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, append([]string(nil), tables...))
}

func (n *recordingNotifier) Batches() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]string(nil), n.batches...)
}

func txn(week, category string, amount float64) core.Transaction {
	return core.Transaction{
		WeekStartDate: week,
		Category:      category,
		Amount:        decimal.NewFromFloat(amount),
		CreatedAt:     core.NowMillis(),
	}
}

var _ = Describe("SQLiteRepository", func() {
	var (
		ctx      context.Context
		dbPath   string
		repo     *storage.SQLiteRepository
		notifier *recordingNotifier
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "ledger.db")
		notifier = &recordingNotifier{}

		var err error
		repo, err = storage.NewSQLiteRepository(dbPath, storage.WithNotifier(notifier))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(repo.Close)
	})

	Describe("migrations", func() {
		It("should report the latest schema version", func() {
			version, dirty, err := storage.MigrationVersion(dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(version).To(BeEquivalentTo(3))
		})

		It("should be idempotent when run again", func() {
			Expect(storage.RunMigrations(dbPath)).To(Succeed())
		})
	})

	Describe("categories", func() {
		It("should seed the default categories", func() {
			all, err := repo.ListCategories(ctx)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(all))
			for _, c := range all {
				names = append(names, c.DisplayName)
			}
			Expect(names).To(Equal([]string{"Adjustment", "Entertainment", "Gas", "Grocery", "Travel"}))
		})

		It("should exclude system categories from the user list", func() {
			user, err := repo.ListUserCategories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(user).To(HaveLen(4))
			for _, c := range user {
				Expect(c.IsSystem).To(BeFalse())
			}
		})

		It("should insert and look up a category by name", func() {
			id, err := repo.InsertCategory(ctx, core.Category{Name: "FOOD", DisplayName: "Food", Color: "#000000"})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeNumerically(">", 0))

			c, ok, err := repo.GetCategoryByName(ctx, "FOOD")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(c.ID).To(Equal(id))
			Expect(c.DisplayName).To(Equal("Food"))
		})

		It("should report an absent category without an error", func() {
			c, ok, err := repo.GetCategoryByName(ctx, "MISSING")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(c).To(BeNil())
		})

		It("should reject a duplicate name", func() {
			_, err := repo.InsertCategory(ctx, core.Category{Name: "GAS", DisplayName: "Gas again", Color: "#111111"})
			Expect(err).To(MatchError(core.ErrConstraintViolation))
		})

		It("should update and delete a category", func() {
			c, _, err := repo.GetCategoryByName(ctx, "TRAVEL")
			Expect(err).NotTo(HaveOccurred())

			c.DisplayName = "Trips"
			Expect(repo.UpdateCategory(ctx, *c)).To(Succeed())

			updated, _, err := repo.GetCategoryByName(ctx, "TRAVEL")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.DisplayName).To(Equal("Trips"))

			Expect(repo.DeleteCategory(ctx, *c)).To(Succeed())
			_, ok, err := repo.GetCategoryByName(ctx, "TRAVEL")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should return not found when deleting an unknown category", func() {
			err := repo.DeleteCategory(ctx, core.Category{ID: 9999})
			Expect(err).To(MatchError(core.ErrNotFound))
		})

		It("should delete a category only while nothing references it", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-02", "GAS", 12))
			Expect(err).NotTo(HaveOccurred())

			gas, _, err := repo.GetCategoryByName(ctx, "GAS")
			Expect(err).NotTo(HaveOccurred())
			err = repo.DeleteCategoryIfUnused(ctx, *gas)
			Expect(err).To(MatchError(core.ErrCategoryInUse))
			Expect(err).NotTo(MatchError(core.ErrStorage))
			_, ok, err := repo.GetCategoryByName(ctx, "GAS")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			travel, _, err := repo.GetCategoryByName(ctx, "TRAVEL")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.DeleteCategoryIfUnused(ctx, *travel)).To(Succeed())
			Expect(repo.DeleteCategoryIfUnused(ctx, *travel)).To(MatchError(core.ErrNotFound))

			Expect(notifier.Batches()).To(Equal([][]string{
				{core.TableTransactions},
				{core.TableCategories},
			}))
		})
	})

	Describe("budget", func() {
		It("should report no budget until one is set", func() {
			b, err := repo.Budget(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.IsSet).To(BeFalse())
			Expect(b.PendingFrom).To(BeEmpty())
		})

		It("should set the budget right away and clear a pending change", func() {
			Expect(repo.SetPendingBudget(ctx, decimal.NewFromInt(80), "2024-03-09")).To(Succeed())
			Expect(repo.SetBudget(ctx, decimal.RequireFromString("150.25"))).To(Succeed())

			b, err := repo.Budget(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.IsSet).To(BeTrue())
			Expect(b.Amount.Equal(decimal.RequireFromString("150.25"))).To(BeTrue())
			Expect(b.PendingFrom).To(BeEmpty())
			Expect(notifier.Batches()).To(Equal([][]string{{core.TableBudget}, {core.TableBudget}}))
		})

		It("should apply a pending budget from its first week on", func() {
			Expect(repo.SetBudget(ctx, decimal.NewFromInt(100))).To(Succeed())
			Expect(repo.SetPendingBudget(ctx, decimal.NewFromInt(80), "2024-03-09")).To(Succeed())

			b, applied, err := repo.ApplyPendingBudget(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(b.Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(b.Pending.Equal(decimal.NewFromInt(80))).To(BeTrue())
			Expect(b.PendingFrom).To(Equal("2024-03-09"))

			b, applied, err = repo.ApplyPendingBudget(ctx, "2024-03-16")
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())
			Expect(b.Amount.Equal(decimal.NewFromInt(80))).To(BeTrue())
			Expect(b.PendingFrom).To(BeEmpty())

			_, applied, err = repo.ApplyPendingBudget(ctx, "2024-03-23")
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
			Expect(notifier.Batches()).To(HaveLen(3))
		})

		It("should keep the fallback while only a pending budget exists", func() {
			Expect(repo.SetPendingBudget(ctx, decimal.NewFromInt(60), "2024-03-09")).To(Succeed())

			b, err := repo.Budget(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.IsSet).To(BeFalse())
			Expect(b.Effective(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("should reject negative or sub-cent budgets and malformed weeks", func() {
			Expect(repo.SetBudget(ctx, decimal.NewFromInt(-5))).To(MatchError(core.ErrInvalidAmount))
			Expect(repo.SetBudget(ctx, decimal.RequireFromString("9.999"))).To(MatchError(core.ErrInvalidAmount))
			Expect(repo.SetPendingBudget(ctx, decimal.NewFromInt(5), "2024-3-9")).To(MatchError(core.ErrInvalidWeekStart))
			Expect(notifier.Batches()).To(BeEmpty())
		})
	})

	Describe("transactions", func() {
		It("should round-trip every field except the assigned id", func() {
			in := core.Transaction{
				WeekStartDate: "2024-03-02",
				Category:      "GROCERY",
				Amount:        decimal.RequireFromString("12.5"),
				CreatedAt:     1709370000123,
			}
			id, err := repo.InsertTransaction(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.TransactionsForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))

			in.ID = id
			Expect(got[0].Amount.Equal(in.Amount)).To(BeTrue())
			got[0].Amount = in.Amount
			Expect(got[0]).To(Equal(in))
		})

		It("should read every cent amount back unchanged", func() {
			for _, s := range []string{"0.01", "0.1", "0.3", "19.99", "-0.07", "-25", "1234567.89", "9999999999999.99"} {
				in := txn("2024-03-02", "GAS", 0)
				in.Amount = decimal.RequireFromString(s)
				id, err := repo.InsertTransaction(ctx, in)
				Expect(err).NotTo(HaveOccurred())

				got, ok, err := repo.GetTransaction(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(got.Amount.Equal(in.Amount)).To(BeTrue(), "stored %s, read %s", s, got.Amount)
			}
		})

		It("should reject amounts finer than a cent without writing", func() {
			for _, s := range []string{"0.125", "19.999", "0.001"} {
				in := txn("2024-03-02", "GAS", 0)
				in.Amount = decimal.RequireFromString(s)
				_, err := repo.InsertTransaction(ctx, in)
				Expect(err).To(MatchError(core.ErrInvalidAmount), s)

				_, _, err = repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", in.Amount))
				Expect(err).To(MatchError(core.ErrInvalidAmount), s)
			}

			got, err := repo.TransactionsForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
			Expect(notifier.Batches()).To(BeEmpty())
		})

		It("should keep a caller-supplied id and reject a colliding one", func() {
			t := txn("2024-03-02", "GAS", 10)
			t.ID = 42
			id, err := repo.InsertTransaction(ctx, t)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeEquivalentTo(42))

			_, err = repo.InsertTransaction(ctx, t)
			Expect(err).To(MatchError(core.ErrConstraintViolation))
		})

		It("should order the week newest first", func() {
			older := txn("2024-03-02", "GAS", 1)
			older.CreatedAt = 1000
			newer := txn("2024-03-02", "GAS", 2)
			newer.CreatedAt = 2000

			_, err := repo.InsertTransaction(ctx, older)
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.InsertTransaction(ctx, newer)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.TransactionsForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].CreatedAt).To(BeEquivalentTo(2000))
			Expect(got[1].CreatedAt).To(BeEquivalentTo(1000))
		})

		It("should reject a malformed week start", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-3-2", "GAS", 1))
			Expect(err).To(MatchError(core.ErrInvalidWeekStart))
			Expect(notifier.Batches()).To(BeEmpty())
		})

		It("should tolerate a category that does not exist", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-02", "UNKNOWN", 5))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should update and delete a transaction", func() {
			t := txn("2024-03-02", "GAS", 10)
			id, err := repo.InsertTransaction(ctx, t)
			Expect(err).NotTo(HaveOccurred())

			t.ID = id
			t.Amount = decimal.NewFromInt(15)
			Expect(repo.UpdateTransaction(ctx, t)).To(Succeed())

			total, err := repo.TotalForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(total.String()).To(Equal("15"))

			Expect(repo.DeleteTransaction(ctx, t)).To(Succeed())
			Expect(repo.DeleteTransaction(ctx, t)).To(MatchError(core.ErrNotFound))
		})

		It("should look a transaction up by id", func() {
			id, err := repo.InsertTransaction(ctx, txn("2024-03-02", "GROCERY", 4.5))
			Expect(err).NotTo(HaveOccurred())

			got, ok, err := repo.GetTransaction(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got.Category).To(Equal("GROCERY"))
			Expect(got.Amount.String()).To(Equal("4.5"))

			_, ok, err = repo.GetTransaction(ctx, id+100)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should return not found when updating an unknown transaction", func() {
			t := txn("2024-03-02", "GAS", 10)
			t.ID = 777
			Expect(repo.UpdateTransaction(ctx, t)).To(MatchError(core.ErrNotFound))
		})

		It("should delete all transactions but keep categories", func() {
			for _, w := range []string{"2023-12-30", "2024-01-06"} {
				_, err := repo.InsertTransaction(ctx, txn(w, "GAS", 3))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(repo.DeleteAllTransactions(ctx)).To(Succeed())

			years, err := repo.DistinctYears(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(years).To(BeEmpty())

			cats, err := repo.ListCategories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cats).To(HaveLen(5))
		})

		It("should count transactions per category", func() {
			for i := 0; i < 3; i++ {
				_, err := repo.InsertTransaction(ctx, txn("2024-03-02", "GAS", 1))
				Expect(err).NotTo(HaveOccurred())
			}
			n, err := repo.CountTransactionsForCategory(ctx, "GAS")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(3))
		})
	})

	Describe("totals", func() {
		It("should be zero for an empty week", func() {
			total, err := repo.TotalForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(total.IsZero()).To(BeTrue())
		})

		It("should include adjustments and refunds in the weekly total", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-02", "GAS", 40))
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.InsertTransaction(ctx, txn("2024-03-02", "REFUND", -10))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(5)))
			Expect(err).NotTo(HaveOccurred())

			total, err := repo.TotalForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(total.String()).To(Equal("35"))
		})

		It("should sum the month per category", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-04", "Food", 20.0))
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.InsertTransaction(ctx, txn("2024-03-11", "Food", 30.0))
			Expect(err).NotTo(HaveOccurred())

			totals, err := repo.CategoryTotalsForMonth(ctx, "2024-03")
			Expect(err).NotTo(HaveOccurred())
			Expect(totals).To(HaveLen(1))
			Expect(totals[0].Category).To(Equal("Food"))
			Expect(totals[0].Total.String()).To(Equal("50"))
		})

		It("should leave adjustments out of month and year rollups", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-09", "GAS", 20))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-16", decimal.NewFromInt(99)))
			Expect(err).NotTo(HaveOccurred())

			month, err := repo.CategoryTotalsForMonth(ctx, "2024-03")
			Expect(err).NotTo(HaveOccurred())
			Expect(month).To(HaveLen(1))
			Expect(month[0].Category).To(Equal("GAS"))

			year, err := repo.CategoryTotalsForYear(ctx, "2024")
			Expect(err).NotTo(HaveOccurred())
			Expect(year).To(HaveLen(1))
			Expect(year[0].Total.String()).To(Equal("20"))
		})

		It("should list each year once, newest first", func() {
			for _, w := range []string{"2023-01-07", "2024-03-02", "2023-06-03", "2022-12-31", "2024-03-09"} {
				_, err := repo.InsertTransaction(ctx, txn(w, "GAS", 1))
				Expect(err).NotTo(HaveOccurred())
			}

			years, err := repo.DistinctYears(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(years).To(Equal([]string{"2024", "2023", "2022"}))
		})
	})

	Describe("adjustments", func() {
		It("should insert once and then return the existing id", func() {
			first, inserted, err := repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(10)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			second, inserted, err := repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(20)))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())
			Expect(second).To(Equal(first))

			adj, ok, err := repo.AdjustmentForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(adj.Amount.String()).To(Equal("10"))
			Expect(adj.Category).To(Equal(core.AdjustmentCategory))
		})

		It("should force the adjustment flag", func() {
			t := txn("2024-03-02", core.AdjustmentCategory, 7)
			_, inserted, err := repo.InsertAdjustmentIfNotExists(ctx, t)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			has, err := repo.HasAdjustmentForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeTrue())
		})

		It("should report weeks without an adjustment", func() {
			has, err := repo.HasAdjustmentForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(has).To(BeFalse())

			adj, ok, err := repo.AdjustmentForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(adj).To(BeNil())
		})

		It("should reject a second adjustment through a plain insert", func() {
			_, _, err := repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(1)))
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.InsertTransaction(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(2)))
			Expect(err).To(MatchError(core.ErrConstraintViolation))
		})

		It("should keep one adjustment per week under concurrent calls", func() {
			const workers = 16
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				inserted int
				ids      = map[int64]struct{}{}
			)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()

					id, ok, err := repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(int64(i+1))))
					Expect(err).NotTo(HaveOccurred())

					mu.Lock()
					defer mu.Unlock()
					ids[id] = struct{}{}
					if ok {
						inserted++
					}
				}(i)
			}
			wg.Wait()

			Expect(inserted).To(Equal(1))
			Expect(ids).To(HaveLen(1))

			week, err := repo.TransactionsForWeek(ctx, "2024-03-02")
			Expect(err).NotTo(HaveOccurred())
			Expect(week).To(HaveLen(1))
		})

		It("should keep one adjustment per week across two stores on the same file", func() {
			other, err := storage.NewSQLiteRepository(dbPath)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(other.Close)

			var wg sync.WaitGroup
			for _, r := range []*storage.SQLiteRepository{repo, other, repo, other} {
				wg.Add(1)
				go func(r *storage.SQLiteRepository) {
					defer GinkgoRecover()
					defer wg.Done()
					_, _, err := r.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-09", decimal.NewFromInt(3)))
					Expect(err).NotTo(HaveOccurred())
				}(r)
			}
			wg.Wait()

			week, err := repo.TransactionsForWeek(ctx, "2024-03-09")
			Expect(err).NotTo(HaveOccurred())
			Expect(week).To(HaveLen(1))
		})
	})

	Describe("change notifications", func() {
		It("should notify the touched table after each committed write", func() {
			_, err := repo.InsertTransaction(ctx, txn("2024-03-02", "GAS", 1))
			Expect(err).NotTo(HaveOccurred())
			_, err = repo.InsertCategory(ctx, core.Category{Name: "FOOD", DisplayName: "Food", Color: "#000000"})
			Expect(err).NotTo(HaveOccurred())

			Expect(notifier.Batches()).To(Equal([][]string{
				{core.TableTransactions},
				{core.TableCategories},
			}))
		})

		It("should not notify when a write fails", func() {
			_, err := repo.InsertCategory(ctx, core.Category{Name: "GAS", DisplayName: "Gas", Color: "#000000"})
			Expect(err).To(HaveOccurred())
			Expect(repo.DeleteTransaction(ctx, core.Transaction{ID: 123})).To(MatchError(core.ErrNotFound))

			Expect(notifier.Batches()).To(BeEmpty())
		})

		It("should not notify when the adjustment already exists", func() {
			_, _, err := repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(1)))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repo.InsertAdjustmentIfNotExists(ctx, core.NewAdjustment("2024-03-02", decimal.NewFromInt(1)))
			Expect(err).NotTo(HaveOccurred())

			Expect(notifier.Batches()).To(HaveLen(1))
		})

		It("should refuse to start a write with a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := repo.InsertTransaction(cancelled, txn("2024-03-02", "GAS", 1))
			Expect(err).To(MatchError(context.Canceled))
			Expect(notifier.Batches()).To(BeEmpty())
		})
	})
})
