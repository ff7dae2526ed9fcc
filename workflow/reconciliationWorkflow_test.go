package workflow_test

import (
	"context"
	"testing"

	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/workflow"
	"gorm.io/gorm"
)

// seedTradingHistory builds a customer with two sales and a payment through
// the engine, returning the customer account.
func seedTradingHistory(t *testing.T, db *gorm.DB, engine *workflow.Engine) *models.Account {
	t.Helper()
	ctx := context.Background()

	customer := seedAccount(t, db, "Hist Customer", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Hist Supplier", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "H-1MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "100", "2.00")

	for i, saleDay := range []string{"2026-02-01", "2026-03-01"} {
		res := engine.CreateSale(ctx, &models.NewSale{
			CustomerId: customer.ID,
			SaleDate:   day(t, saleDay),
			Lines: []models.NewSaleLine{
				{SheetId: sheet.ID, Quantity: mustDecimal(t, "2"), UnitPrice: mustDecimal(t, "50")},
			},
		})
		if !res.Success {
			t.Fatalf("CreateSale %d: %v", i+1, res.Error)
		}
	}
	pay := engine.RecordPayment(ctx, &models.NewPayment{
		AccountId:   customer.ID,
		PaymentDate: day(t, "2026-02-15"),
		Amount:      mustDecimal(t, "60"),
		Method:      "cash",
	})
	if !pay.Success {
		t.Fatalf("RecordPayment: %v", pay.Error)
	}
	return customer
}

func ledgerRows(t *testing.T, db *gorm.DB, accountId int) []models.AccountTransaction {
	t.Helper()
	rows, err := models.AccountTransactionsInOrder(db, accountId)
	if err != nil {
		t.Fatalf("AccountTransactionsInOrder: %v", err)
	}
	return rows
}

func TestRecalculateAccountRestoresCorruptedTrail(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	customer := seedTradingHistory(t, db, engine)
	ctx := context.Background()

	before := ledgerRows(t, db, customer.ID)
	if len(before) != 3 {
		t.Fatalf("ledger rows = %d, want 3", len(before))
	}
	// 100 sale, -60 payment, 100 sale in date order.
	assertDecimal(t, "final balance before corruption", before[2].BalanceAfter, "140")

	// Corrupt a stored running total.
	if err := db.Model(&models.AccountTransaction{}).
		Where("id = ?", before[1].ID).
		Update("balance_after", mustDecimal(t, "9999")).Error; err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	res := engine.RecalculateAccount(ctx, customer.ID)
	if !res.Success {
		t.Fatalf("RecalculateAccount: %v", res.Error)
	}

	after := ledgerRows(t, db, customer.ID)
	if len(after) != 3 {
		t.Fatalf("rebuilt rows = %d, want 3", len(after))
	}
	assertDecimal(t, "row 0", after[0].BalanceAfter, "100")
	assertDecimal(t, "row 1", after[1].BalanceAfter, "40")
	assertDecimal(t, "row 2", after[2].BalanceAfter, "140")

	ok, err := engine.Reconciler().BalancesAgree(ctx, customer.ID)
	if err != nil {
		t.Fatalf("BalancesAgree: %v", err)
	}
	if !ok {
		t.Fatal("strategies disagree after rebuild")
	}
}

func TestRecalculateAccountIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	customer := seedTradingHistory(t, db, engine)
	ctx := context.Background()

	if res := engine.RecalculateAccount(ctx, customer.ID); !res.Success {
		t.Fatalf("first RecalculateAccount: %v", res.Error)
	}
	first := ledgerRows(t, db, customer.ID)

	if res := engine.RecalculateAccount(ctx, customer.ID); !res.Success {
		t.Fatalf("second RecalculateAccount: %v", res.Error)
	}
	second := ledgerRows(t, db, customer.ID)

	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Amount.Equal(second[i].Amount) ||
			!first[i].BalanceAfter.Equal(second[i].BalanceAfter) ||
			first[i].ReferenceType != second[i].ReferenceType ||
			first[i].ReferenceId != second[i].ReferenceId {
			t.Fatalf("row %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRecalculateAllCoversSuppliers(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	supplier := seedAccount(t, db, "Supply Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "R-1MM", "10")

	res := engine.CreatePurchase(ctx, &models.NewBatch{
		SheetId:      sheet.ID,
		SupplierId:   supplier.ID,
		ReceivedDate: day(t, "2026-01-10"),
		Quantity:     mustDecimal(t, "10"),
		PricePerKg:   mustDecimal(t, "2.50"),
	})
	if !res.Success {
		t.Fatalf("CreatePurchase: %v", res.Error)
	}
	pay := engine.RecordPayment(ctx, &models.NewPayment{
		AccountId:   supplier.ID,
		PaymentDate: day(t, "2026-01-20"),
		Amount:      mustDecimal(t, "100"),
		Method:      "transfer",
	})
	if !pay.Success {
		t.Fatalf("RecordPayment: %v", pay.Error)
	}

	all := engine.RecalculateAll(ctx)
	if !all.Success {
		t.Fatalf("RecalculateAll: %v", all.Error)
	}
	if all.Data != 1 {
		t.Fatalf("accounts rebuilt = %d, want 1", all.Data)
	}

	rows := ledgerRows(t, db, supplier.ID)
	if len(rows) != 2 {
		t.Fatalf("supplier rows = %d, want 2", len(rows))
	}
	// 10 pieces * 2.50/kg * 10 kg = 250, then -100 payment.
	assertDecimal(t, "purchase posting", rows[0].BalanceAfter, "250")
	assertDecimal(t, "after payment", rows[1].BalanceAfter, "150")
}

func TestRebuildBalanceTrailFixesDriftInPlace(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	customer := seedTradingHistory(t, db, engine)
	ctx := context.Background()

	rows := ledgerRows(t, db, customer.ID)
	// Drift every stored total without touching amounts.
	for _, row := range rows {
		if err := db.Model(&models.AccountTransaction{}).
			Where("id = ?", row.ID).
			Update("balance_after", row.BalanceAfter.Add(mustDecimal(t, "5"))).Error; err != nil {
			t.Fatalf("drift row: %v", err)
		}
	}

	res := engine.RebuildBalanceTrail(ctx, customer.ID)
	if !res.Success {
		t.Fatalf("RebuildBalanceTrail: %v", res.Error)
	}

	fixed := ledgerRows(t, db, customer.ID)
	for i, row := range fixed {
		if !row.Amount.Equal(rows[i].Amount) {
			t.Fatalf("row %d amount changed during trail rebuild", i)
		}
	}
	assertDecimal(t, "row 0", fixed[0].BalanceAfter, "100")
	assertDecimal(t, "row 1", fixed[1].BalanceAfter, "40")
	assertDecimal(t, "row 2", fixed[2].BalanceAfter, "140")
}
