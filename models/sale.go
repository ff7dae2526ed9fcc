package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Sale is an authoritative source document. Its ledger row can be deleted
// and regenerated by reconciliation; the sale itself is the truth.
type Sale struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CustomerId  int             `gorm:"index:idx_sale_customer_date,priority:1;not null" json:"customer_id"`
	SaleDate    time.Time       `gorm:"index:idx_sale_customer_date,priority:2;not null" json:"sale_date"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Note        string          `gorm:"type:text" json:"note"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Lines []SaleLine `gorm:"foreignKey:SaleId" json:"lines"`
}

type SaleLine struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"index;not null" json:"sale_id"`
	SheetId   int             `gorm:"index;not null" json:"sheet_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"line_total"`
	Cogs      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"cogs"`
}

type NewSaleLine struct {
	SheetId   int             `json:"sheet_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	// BatchId targets a specific batch instead of FIFO. Optional.
	BatchId *int `json:"batch_id"`
}

type NewSale struct {
	CustomerId int           `json:"customer_id" validate:"required,gt=0"`
	SaleDate   time.Time     `json:"sale_date" validate:"required"`
	Note       string        `json:"note"`
	Lines      []NewSaleLine `json:"lines" validate:"required,min=1,dive"`
}

// SalesForCustomer returns a customer's sales in (document_date, id) order.
func SalesForCustomer(db *gorm.DB, customerId int) ([]Sale, error) {
	var sales []Sale
	err := db.Where("customer_id = ?", customerId).
		Order("sale_date, id").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}
