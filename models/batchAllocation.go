package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchAllocation records which batches a sale line consumed and at what
// cost. Created atomically with the sale line, immutable afterward; a sale
// deletion releases it by re-crediting the same batches and stamping
// ReleasedAt, never by editing quantities.
type BatchAllocation struct {
	ID            int             `gorm:"primary_key" json:"id"`
	SaleLineId    int             `gorm:"index;not null" json:"sale_line_id"`
	SheetId       int             `gorm:"index;not null" json:"sheet_id"`
	TotalQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_quantity"`
	TotalCogs     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_cogs"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	ReleasedAt    *time.Time      `gorm:"index" json:"released_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Details []BatchAllocationDetail `gorm:"foreignKey:AllocationId" json:"details"`
}

type BatchAllocationDetail struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AllocationId  int             `gorm:"index;not null" json:"allocation_id"`
	BatchId       int             `gorm:"index;not null" json:"batch_id"`
	QuantityTaken decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity_taken"`
	UnitCostUsed  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost_used"`
}

func GetAllocation(db *gorm.DB, id int) (*BatchAllocation, error) {
	var allocation BatchAllocation
	err := db.Preload("Details").Where("id = ?", id).First(&allocation).Error
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

func AllocationForSaleLine(db *gorm.DB, saleLineId int) (*BatchAllocation, error) {
	var allocation BatchAllocation
	err := db.Preload("Details").
		Where("sale_line_id = ? AND released_at IS NULL", saleLineId).
		First(&allocation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &allocation, nil
}
