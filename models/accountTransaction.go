package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountTransaction is one row of a counterparty ledger. Rows are
// append-only: a correction never edits an amount in place, it reconciles
// (delete and regenerate) through the reconciliation workflow.
//
// Sign convention: positive amounts increase what the account owes,
// negative amounts decrease it. BalanceAfter is the running total in
// (transaction_date, id) order, rounded at every step.
type AccountTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AccountId       int             `gorm:"index:idx_acc_txn_account_date,priority:1;not null" json:"account_id"`
	TransactionType TransactionType `gorm:"size:12;not null" json:"transaction_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	ReferenceType   ReferenceType   `gorm:"size:4;not null" json:"reference_type"`
	ReferenceId     int             `gorm:"index" json:"reference_id"`
	TransactionDate time.Time       `gorm:"index:idx_acc_txn_account_date,priority:2;not null" json:"transaction_date"`
	Note            string          `gorm:"type:text" json:"note"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// AccountTransactionsInOrder returns the full ledger of an account in
// posting order.
func AccountTransactionsInOrder(db *gorm.DB, accountId int) ([]AccountTransaction, error) {
	var rows []AccountTransaction
	err := db.Where("account_id = ?", accountId).
		Order("transaction_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
