package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment settles part of what a counterparty owes (customer paying us) or
// what we owe (us paying a supplier). On the ledger it always posts with a
// negative amount against the account's balance.
type Payment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	AccountId   int             `gorm:"index:idx_payment_account_date,priority:1;not null" json:"account_id"`
	PaymentDate time.Time       `gorm:"index:idx_payment_account_date,priority:2;not null" json:"payment_date"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method      string          `gorm:"size:30" json:"method"`
	Note        string          `gorm:"type:text" json:"note"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayment struct {
	AccountId   int             `json:"account_id" validate:"required,gt=0"`
	PaymentDate time.Time       `json:"payment_date" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"max=30"`
	Note        string          `json:"note"`
}

// PaymentsForAccount returns an account's payments in document order.
func PaymentsForAccount(db *gorm.DB, accountId int) ([]Payment, error) {
	var payments []Payment
	err := db.Where("account_id = ?", accountId).
		Order("payment_date, id").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
