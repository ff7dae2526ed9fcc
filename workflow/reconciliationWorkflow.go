package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// Reconciler rebuilds ledgers from the documents that are the source of
// truth: sales and payments for customers, received batches and payments
// for suppliers. Ledger rows are derived data; when they drift, they are
// deleted and regenerated, never edited.
type Reconciler struct {
	db     *gorm.DB
	logger *logrus.Logger
	ledger *LedgerStore
}

func NewReconciler(db *gorm.DB, logger *logrus.Logger, ledger *LedgerStore) *Reconciler {
	return &Reconciler{db: db, logger: logger, ledger: ledger}
}

type sourcePosting struct {
	docDate time.Time
	docId   int
	input   PostTransactionInput
}

// RecalculateAccount drops the account's ledger and reposts it from source
// documents in (document_date, document_id) order. Running it twice in a
// row produces identical rows, which is what makes it safe to run after
// any suspected drift.
func (r *Reconciler) RecalculateAccount(tx *Tx, accountId int) error {
	if tx == nil || tx.State() != TxStateInProgress {
		return ErrNoActiveTransaction
	}
	db := tx.DB()

	account, err := models.GetAccount(db, accountId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return utils.NewValidationError("account_id", "account does not exist")
		}
		return err
	}

	if err := db.Where("account_id = ?", accountId).
		Delete(&models.AccountTransaction{}).Error; err != nil {
		return err
	}

	postings, err := r.collectPostings(db, account)
	if err != nil {
		return err
	}
	sort.SliceStable(postings, func(i, j int) bool {
		if !postings[i].docDate.Equal(postings[j].docDate) {
			return postings[i].docDate.Before(postings[j].docDate)
		}
		return postings[i].docId < postings[j].docId
	})

	for i := range postings {
		if _, err := r.ledger.PostTransaction(tx, &postings[i].input); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) collectPostings(db *gorm.DB, account *models.Account) ([]sourcePosting, error) {
	var postings []sourcePosting

	switch account.AccountType {
	case models.AccountTypeCustomer:
		sales, err := models.SalesForCustomer(db, account.ID)
		if err != nil {
			return nil, err
		}
		for _, sale := range sales {
			postings = append(postings, sourcePosting{
				docDate: sale.SaleDate,
				docId:   sale.ID,
				input: PostTransactionInput{
					AccountId:       account.ID,
					TransactionType: models.TransactionTypeSale,
					Amount:          sale.TotalAmount,
					ReferenceType:   models.ReferenceTypeSale,
					ReferenceId:     sale.ID,
					TransactionDate: sale.SaleDate,
					Note:            sale.Note,
				},
			})
		}
	case models.AccountTypeSupplier:
		batches, err := models.BatchesForSupplier(db, account.ID)
		if err != nil {
			return nil, err
		}
		for _, batch := range batches {
			postings = append(postings, sourcePosting{
				docDate: batch.ReceivedDate,
				docId:   batch.ID,
				input: PostTransactionInput{
					AccountId:       account.ID,
					TransactionType: models.TransactionTypePurchase,
					Amount:          batch.TotalCost,
					ReferenceType:   models.ReferenceTypeBatch,
					ReferenceId:     batch.ID,
					TransactionDate: batch.ReceivedDate,
				},
			})
		}
	default:
		return nil, utils.NewValidationError("account_type", "unknown account type")
	}

	payments, err := models.PaymentsForAccount(db, account.ID)
	if err != nil {
		return nil, err
	}
	for _, payment := range payments {
		postings = append(postings, sourcePosting{
			docDate: payment.PaymentDate,
			docId:   payment.ID,
			input: PostTransactionInput{
				AccountId:       account.ID,
				TransactionType: models.TransactionTypePayment,
				Amount:          payment.Amount.Neg(),
				ReferenceType:   models.ReferenceTypePayment,
				ReferenceId:     payment.ID,
				TransactionDate: payment.PaymentDate,
				Note:            payment.Note,
			},
		})
	}
	return postings, nil
}

// RecalculateAll rebuilds every account inside one transaction. Any single
// failure rolls back the whole batch: a half-rebuilt set of ledgers is
// worse than a stale one.
func (r *Reconciler) RecalculateAll(tx *Tx) (int, error) {
	if tx == nil || tx.State() != TxStateInProgress {
		return 0, ErrNoActiveTransaction
	}
	accounts, err := models.ListAccounts(tx.DB(), "")
	if err != nil {
		return 0, err
	}
	for _, account := range accounts {
		if err := r.RecalculateAccount(tx, account.ID); err != nil {
			config.LogError(r.logger, "reconciliationWorkflow.go", "RecalculateAll", "account rebuild failed",
				map[string]any{"account_id": account.ID}, err)
			return 0, err
		}
	}
	return len(accounts), nil
}

// RebuildBalanceTrail recomputes balance_after in (transaction_date, id)
// order while keeping the rows. Used when amounts are trusted but the
// running totals drifted, e.g. after a backdated posting.
func (r *Reconciler) RebuildBalanceTrail(tx *Tx, accountId int) error {
	if tx == nil || tx.State() != TxStateInProgress {
		return ErrNoActiveTransaction
	}
	db := tx.DB()

	if _, err := models.GetAccount(db, accountId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return utils.NewValidationError("account_id", "account does not exist")
		}
		return err
	}

	rows, err := models.AccountTransactionsInOrder(db, accountId)
	if err != nil {
		return err
	}
	running := decimal.Zero
	for _, row := range rows {
		running = utils.AddRound2(running, row.Amount)
		if row.BalanceAfter.Equal(running) {
			continue
		}
		if err := db.Model(&models.AccountTransaction{}).
			Where("id = ?", row.ID).
			Update("balance_after", running).Error; err != nil {
			return err
		}
	}
	return nil
}

// BalancesAgree re-runs the ledger's two balance strategies outside any
// transaction, for operator checks after maintenance.
func (r *Reconciler) BalancesAgree(ctx context.Context, accountId int) (bool, error) {
	rows, err := models.AccountTransactionsInOrder(r.db.WithContext(ctx), accountId)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return true, nil
	}
	summed := decimal.Zero
	for _, row := range rows {
		summed = utils.AddRound2(summed, row.Amount)
	}
	return summed.Equal(rows[len(rows)-1].BalanceAfter), nil
}
