package workflow_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/workflow"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("DB_HOST", "")

	db, err := config.OpenDatabase(config.DatabaseOptions{Path: ":memory:"})
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	if err := models.MigrateTables(db); err != nil {
		t.Fatalf("MigrateTables: %v", err)
	}
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestEngine(t *testing.T, db *gorm.DB) *workflow.Engine {
	t.Helper()
	return workflow.NewEngine(db, newTestLogger(), workflow.EngineOptions{})
}

func seedAccount(t *testing.T, db *gorm.DB, name string, accountType models.AccountType) *models.Account {
	t.Helper()
	account, err := models.CreateAccount(db, &models.NewAccount{
		Name:        name,
		AccountType: accountType,
	})
	if err != nil {
		t.Fatalf("CreateAccount %s: %v", name, err)
	}
	return account
}

func seedSheet(t *testing.T, db *gorm.DB, code string, weightKg string) *models.Sheet {
	t.Helper()
	sheet, err := models.CreateSheet(db, &models.NewSheet{
		Code:        code,
		MetalType:   "steel",
		ThicknessMm: decimal.NewFromInt(2),
		WeightKg:    mustDecimal(t, weightKg),
	})
	if err != nil {
		t.Fatalf("CreateSheet %s: %v", code, err)
	}
	return sheet
}

func seedBatch(t *testing.T, db *gorm.DB, sheetId, supplierId int, received time.Time, quantity, pricePerKg string) *models.SheetBatch {
	t.Helper()
	qty := mustDecimal(t, quantity)
	price := mustDecimal(t, pricePerKg)

	var sheet models.Sheet
	if err := db.First(&sheet, sheetId).Error; err != nil {
		t.Fatalf("load sheet %d: %v", sheetId, err)
	}
	batch := models.SheetBatch{
		SheetId:           sheetId,
		SupplierId:        supplierId,
		ReceivedDate:      received.UTC().Truncate(24 * time.Hour),
		QuantityOriginal:  qty,
		QuantityRemaining: qty,
		PricePerKg:        price,
		TotalCost:         qty.Mul(price).Mul(sheet.WeightKg).Round(2),
	}
	if err := db.Create(&batch).Error; err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return &batch
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(mustDecimal(t, want)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}
