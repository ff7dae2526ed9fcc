package reports

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// AgingReportRow is one account's receivable (or payable) broken down by
// how old each charge is on the report date. Charges age by their own
// document date; payments reduce the balance but never re-age a charge.
type AgingReportRow struct {
	AccountId   int             `json:"account_id"`
	AccountName string          `json:"account_name"`
	AccountType string          `json:"account_type"`
	Balance     decimal.Decimal `json:"balance"`
	Current     decimal.Decimal `json:"current"`
	Days1to30   decimal.Decimal `json:"days_1_to_30"`
	Days31to60  decimal.Decimal `json:"days_31_to_60"`
	Days61to90  decimal.Decimal `json:"days_61_to_90"`
	Over90      decimal.Decimal `json:"over_90"`
	TotalDebits decimal.Decimal `json:"total_debits"`
	ChargeCount int             `json:"charge_count"`
}

type agingTransaction struct {
	AccountId       int
	AccountName     string
	AccountType     string
	Amount          decimal.Decimal
	TransactionDate time.Time
}

// GetAgingReport buckets every charge of every positive-balance account of
// the given type as of asOf. Bucket totals always sum to TotalDebits; the
// balance can be lower because payments offset the total, not a bucket.
func GetAgingReport(db *gorm.DB, accountType models.AccountType, asOf time.Time) ([]*AgingReportRow, error) {
	if !accountType.Valid() {
		return nil, utils.NewValidationError("account_type", "unknown account type")
	}
	asOf = utils.NormalizeDate(asOf)

	var txns []agingTransaction
	err := db.Model(&models.AccountTransaction{}).
		Select("account_transactions.account_id, accounts.name AS account_name, accounts.account_type, account_transactions.amount, account_transactions.transaction_date").
		Joins("JOIN accounts ON accounts.id = account_transactions.account_id").
		Where("accounts.account_type = ?", accountType).
		Where("account_transactions.transaction_date <= ?", asOf).
		Order("account_transactions.account_id, account_transactions.transaction_date, account_transactions.id").
		Scan(&txns).Error
	if err != nil {
		return nil, err
	}

	byAccount := map[int]*AgingReportRow{}
	var order []int
	for _, txn := range txns {
		row, ok := byAccount[txn.AccountId]
		if !ok {
			row = &AgingReportRow{
				AccountId:   txn.AccountId,
				AccountName: txn.AccountName,
				AccountType: txn.AccountType,
			}
			byAccount[txn.AccountId] = row
			order = append(order, txn.AccountId)
		}
		row.Balance = utils.AddRound2(row.Balance, txn.Amount)
		if !txn.Amount.IsPositive() {
			continue
		}
		row.TotalDebits = utils.AddRound2(row.TotalDebits, txn.Amount)
		row.ChargeCount++
		switch age := daysBetween(txn.TransactionDate, asOf); {
		case age <= 0:
			row.Current = utils.AddRound2(row.Current, txn.Amount)
		case age <= 30:
			row.Days1to30 = utils.AddRound2(row.Days1to30, txn.Amount)
		case age <= 60:
			row.Days31to60 = utils.AddRound2(row.Days31to60, txn.Amount)
		case age <= 90:
			row.Days61to90 = utils.AddRound2(row.Days61to90, txn.Amount)
		default:
			row.Over90 = utils.AddRound2(row.Over90, txn.Amount)
		}
	}

	var rows []*AgingReportRow
	for _, accountId := range order {
		row := byAccount[accountId]
		if row.Balance.IsPositive() {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// daysBetween counts whole calendar days from a document date to the
// report date, both snapped to midnight UTC.
func daysBetween(from, to time.Time) int {
	from = utils.NormalizeDate(from)
	return int(to.Sub(from).Hours() / 24)
}

// AgingSummary is the one-line rollup across every row of an aging report.
type AgingSummary struct {
	AccountType  string          `json:"account_type"`
	AsOf         time.Time       `json:"as_of"`
	AccountCount int             `json:"account_count"`
	Balance      decimal.Decimal `json:"balance"`
	Current      decimal.Decimal `json:"current"`
	Days1to30    decimal.Decimal `json:"days_1_to_30"`
	Days31to60   decimal.Decimal `json:"days_31_to_60"`
	Days61to90   decimal.Decimal `json:"days_61_to_90"`
	Over90       decimal.Decimal `json:"over_90"`
}

func GetAgingSummary(db *gorm.DB, accountType models.AccountType, asOf time.Time) (*AgingSummary, error) {
	rows, err := GetAgingReport(db, accountType, asOf)
	if err != nil {
		return nil, err
	}
	summary := AgingSummary{
		AccountType: string(accountType),
		AsOf:        utils.NormalizeDate(asOf),
	}
	for _, row := range rows {
		summary.AccountCount++
		summary.Balance = utils.AddRound2(summary.Balance, row.Balance)
		summary.Current = utils.AddRound2(summary.Current, row.Current)
		summary.Days1to30 = utils.AddRound2(summary.Days1to30, row.Days1to30)
		summary.Days31to60 = utils.AddRound2(summary.Days31to60, row.Days31to60)
		summary.Days61to90 = utils.AddRound2(summary.Days61to90, row.Days61to90)
		summary.Over90 = utils.AddRound2(summary.Over90, row.Over90)
	}
	return &summary, nil
}

// GetOverdueAccounts keeps only rows with charges past the current bucket.
func GetOverdueAccounts(db *gorm.DB, accountType models.AccountType, asOf time.Time) ([]*AgingReportRow, error) {
	rows, err := GetAgingReport(db, accountType, asOf)
	if err != nil {
		return nil, err
	}
	var overdue []*AgingReportRow
	for _, row := range rows {
		past := row.Days1to30.Add(row.Days31to60).Add(row.Days61to90).Add(row.Over90)
		if past.IsPositive() {
			overdue = append(overdue, row)
		}
	}
	return overdue, nil
}
