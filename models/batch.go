package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SheetBatch is a received lot of a sheet. QuantityRemaining is decremented
// by allocations and re-credited by compensating releases; nothing else may
// touch it. Invariant: 0 <= quantity_remaining <= quantity_original.
type SheetBatch struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SheetId           int             `gorm:"index:idx_batch_sheet_received,priority:1;not null" json:"sheet_id"`
	SupplierId        int             `gorm:"index;not null" json:"supplier_id"`
	ReceivedDate      time.Time       `gorm:"index:idx_batch_sheet_received,priority:2;not null" json:"received_date"`
	QuantityOriginal  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_original"`
	QuantityRemaining decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_remaining"`
	PricePerKg        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_per_kg"`
	TotalCost         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_cost"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBatch struct {
	SheetId      int             `json:"sheet_id" validate:"required,gt=0"`
	SupplierId   int             `json:"supplier_id" validate:"required,gt=0"`
	ReceivedDate time.Time       `json:"received_date" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerKg   decimal.Decimal `json:"price_per_kg"`
}

// EligibleBatches returns the batches FIFO consumption walks: remaining
// stock for the sheet, oldest received first, id as the tiebreaker.
func EligibleBatches(db *gorm.DB, sheetId int) ([]SheetBatch, error) {
	var batches []SheetBatch
	err := db.Where("sheet_id = ? AND quantity_remaining > 0", sheetId).
		Order("received_date, id").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// BatchesForSupplier returns a supplier's received lots in document order,
// the purchase-side source facts the reconciler rebuilds ledgers from.
func BatchesForSupplier(db *gorm.DB, supplierId int) ([]SheetBatch, error) {
	var batches []SheetBatch
	err := db.Where("supplier_id = ?", supplierId).
		Order("received_date, id").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
