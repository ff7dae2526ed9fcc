package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/zmsaddi/metalflow_backend/appctx"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
)

func TestCreateSalePostsLedgerAndConsumesStock(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyUserName, "tester")

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-1MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "5", "2.00")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-02-01"), "10", "3.00")

	res := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-01"),
		Note:       "first order",
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "8"), UnitPrice: mustDecimal(t, "45.50")},
		},
	})
	if !res.Success {
		t.Fatalf("CreateSale: %v", res.Error)
	}
	sale := res.Data
	assertDecimal(t, "sale total", sale.TotalAmount, "364") // 8 * 45.50
	if len(sale.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(sale.Lines))
	}
	assertDecimal(t, "line cogs", sale.Lines[0].Cogs, "190") // 5*20 + 3*30

	rows := ledgerRows(t, db, customer.ID)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	assertDecimal(t, "ledger amount", rows[0].Amount, "364")
	assertDecimal(t, "ledger balance", rows[0].BalanceAfter, "364")
	if rows[0].ReferenceType != models.ReferenceTypeSale || rows[0].ReferenceId != sale.ID {
		t.Fatalf("ledger reference = %s/%d, want %s/%d",
			rows[0].ReferenceType, rows[0].ReferenceId, models.ReferenceTypeSale, sale.ID)
	}

	available, err := engine.Allocator().AvailableQuantity(db, sheet.ID)
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	assertDecimal(t, "available after sale", available, "7")
}

func TestCreateSaleInsufficientStockLeavesNothingBehind(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-2MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "3", "2.00")

	res := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-01"),
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "5"), UnitPrice: mustDecimal(t, "40")},
		},
	})
	if res.Success {
		t.Fatal("expected failure on short stock")
	}
	if !utils.IsInsufficientStock(res.Error) {
		t.Fatalf("expected InsufficientStockError in cause chain, got %v", res.Error)
	}

	var sales, lines, ledger int64
	db.Model(&models.Sale{}).Count(&sales)
	db.Model(&models.SaleLine{}).Count(&lines)
	db.Model(&models.AccountTransaction{}).Count(&ledger)
	if sales != 0 || lines != 0 || ledger != 0 {
		t.Fatalf("residue after failed sale: sales=%d lines=%d ledger=%d", sales, lines, ledger)
	}
	available, err := engine.Allocator().AvailableQuantity(db, sheet.ID)
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	assertDecimal(t, "stock untouched", available, "3")
}

func TestDeleteSaleReversesEverything(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-3MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "10", "2.00")

	first := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-01"),
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "4"), UnitPrice: mustDecimal(t, "50")},
		},
	})
	if !first.Success {
		t.Fatalf("CreateSale: %v", first.Error)
	}
	second := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-05"),
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "2"), UnitPrice: mustDecimal(t, "50")},
		},
	})
	if !second.Success {
		t.Fatalf("second CreateSale: %v", second.Error)
	}

	del := engine.DeleteSale(ctx, first.Data.ID)
	if !del.Success {
		t.Fatalf("DeleteSale: %v", del.Error)
	}

	available, err := engine.Allocator().AvailableQuantity(db, sheet.ID)
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	assertDecimal(t, "stock after reversal", available, "8")

	rows := ledgerRows(t, db, customer.ID)
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].ReferenceId != second.Data.ID {
		t.Fatalf("surviving row references sale %d, want %d", rows[0].ReferenceId, second.Data.ID)
	}
	assertDecimal(t, "trail repaired", rows[0].BalanceAfter, "100")

	balance, err := engine.Ledger().GetBalance(ctx, customer.ID, nil)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	assertDecimal(t, "balance after reversal", balance, "100")
}

func TestRecordPaymentReducesBalance(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-4MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "10", "2.00")

	sale := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-01"),
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "2"), UnitPrice: mustDecimal(t, "100")},
		},
	})
	if !sale.Success {
		t.Fatalf("CreateSale: %v", sale.Error)
	}

	pay := engine.RecordPayment(ctx, &models.NewPayment{
		AccountId:   customer.ID,
		PaymentDate: day(t, "2026-03-10"),
		Amount:      mustDecimal(t, "75.50"),
		Method:      "cash",
	})
	if !pay.Success {
		t.Fatalf("RecordPayment: %v", pay.Error)
	}

	balance, err := engine.Ledger().GetBalance(ctx, customer.ID, nil)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	assertDecimal(t, "balance after payment", balance, "124.50")

	rows := ledgerRows(t, db, customer.ID)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
	assertDecimal(t, "payment posting", rows[1].Amount, "-75.50")
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	res := engine.RecordPayment(context.Background(), &models.NewPayment{
		AccountId:   customer.ID,
		PaymentDate: day(t, "2026-03-10"),
		Amount:      mustDecimal(t, "-5"),
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !utils.IsValidationError(res.Error) {
		t.Fatalf("expected ValidationError, got %v", res.Error)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-5MM", "10")
	seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "10", "2.00")

	const workers = 4
	var wg sync.WaitGroup
	results := make([]utils.Result[*models.Sale], workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = engine.CreateSale(ctx, &models.NewSale{
				CustomerId: customer.ID,
				SaleDate:   day(t, "2026-03-01"),
				Lines: []models.NewSaleLine{
					{SheetId: sheet.ID, Quantity: mustDecimal(t, "4"), UnitPrice: mustDecimal(t, "50")},
				},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		} else if !utils.IsInsufficientStock(res.Error) {
			t.Fatalf("unexpected failure: %v", res.Error)
		}
	}
	// 10 on hand, 4 per sale: exactly two can succeed.
	if succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", succeeded)
	}

	available, err := engine.Allocator().AvailableQuantity(db, sheet.ID)
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	assertDecimal(t, "remaining stock", available, "2")

	ok, err := engine.Reconciler().BalancesAgree(ctx, customer.ID)
	if err != nil {
		t.Fatalf("BalancesAgree: %v", err)
	}
	if !ok {
		t.Fatal("ledger trail inconsistent after concurrent sales")
	}
}

func TestRestockBatchGuardsOriginalQuantity(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, db)
	ctx := context.Background()

	customer := seedAccount(t, db, "Acme Fab", models.AccountTypeCustomer)
	supplier := seedAccount(t, db, "Mill Co", models.AccountTypeSupplier)
	sheet := seedSheet(t, db, "E-6MM", "10")
	batch := seedBatch(t, db, sheet.ID, supplier.ID, day(t, "2026-01-01"), "10", "2.00")

	sale := engine.CreateSale(ctx, &models.NewSale{
		CustomerId: customer.ID,
		SaleDate:   day(t, "2026-03-01"),
		Lines: []models.NewSaleLine{
			{SheetId: sheet.ID, Quantity: mustDecimal(t, "6"), UnitPrice: mustDecimal(t, "50")},
		},
	})
	if !sale.Success {
		t.Fatalf("CreateSale: %v", sale.Error)
	}

	res := engine.RestockBatch(ctx, batch.ID, mustDecimal(t, "2"), 3)
	if !res.Success {
		t.Fatalf("RestockBatch: %v", res.Error)
	}
	assertDecimal(t, "remaining after restock", res.Data.QuantityRemaining, "6")

	over := engine.RestockBatch(ctx, batch.ID, mustDecimal(t, "100"), 3)
	if over.Success {
		t.Fatal("expected failure when restock exceeds original quantity")
	}
	if !utils.IsValidationError(over.Error) {
		t.Fatalf("expected ValidationError, got %v", over.Error)
	}
}
