package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// Sheet is the stock-keeping unit: a metal sheet specification. Batch costs
// are stored per kilogram, so WeightKg is what turns a per-kg price into a
// per-piece unit cost.
type Sheet struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Code        string          `gorm:"size:50;uniqueIndex;not null" json:"code"`
	MetalType   string          `gorm:"size:50;not null" json:"metal_type"`
	ThicknessMm decimal.Decimal `gorm:"type:decimal(10,2)" json:"thickness_mm"`
	WeightKg    decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"weight_kg"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSheet struct {
	Code        string          `json:"code" validate:"required,max=50"`
	MetalType   string          `json:"metal_type" validate:"required,max=50"`
	ThicknessMm decimal.Decimal `json:"thickness_mm"`
	WeightKg    decimal.Decimal `json:"weight_kg"`
}

func CreateSheet(db *gorm.DB, input *NewSheet) (*Sheet, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.WeightKg.IsPositive() {
		return nil, utils.NewValidationError("weight_kg", "must be positive")
	}
	sheet := Sheet{
		Code:        input.Code,
		MetalType:   input.MetalType,
		ThicknessMm: input.ThicknessMm,
		WeightKg:    input.WeightKg,
	}
	if err := db.Create(&sheet).Error; err != nil {
		return nil, err
	}
	return &sheet, nil
}

func GetSheet(db *gorm.DB, id int) (*Sheet, error) {
	var sheet Sheet
	if err := db.Where("id = ?", id).First(&sheet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &sheet, nil
}
