package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// LedgerStore is the append primitive for counterparty ledgers plus the
// read side (balance, statement). Posting must happen inside a caller
// supplied transaction; reads go straight to the store.
type LedgerStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewLedgerStore(db *gorm.DB, logger *logrus.Logger) *LedgerStore {
	return &LedgerStore{db: db, logger: logger}
}

type PostTransactionInput struct {
	AccountId       int                    `json:"account_id" validate:"required,gt=0"`
	TransactionType models.TransactionType `json:"transaction_type" validate:"required"`
	Amount          decimal.Decimal        `json:"amount"`
	ReferenceType   models.ReferenceType   `json:"reference_type" validate:"required"`
	ReferenceId     int                    `json:"reference_id"`
	TransactionDate time.Time              `json:"transaction_date" validate:"required"`
	Note            string                 `json:"note"`
}

// PostTransaction appends one ledger row with its running balance. It never
// opens its own transaction: tx must already be in progress so the post
// commits or rolls back together with the documents that caused it.
func (s *LedgerStore) PostTransaction(tx *Tx, input *PostTransactionInput) (*models.AccountTransaction, error) {
	if tx == nil || tx.State() != TxStateInProgress {
		return nil, ErrNoActiveTransaction
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.TransactionType.Valid() {
		return nil, utils.NewValidationError("transaction_type", "unknown type")
	}
	if _, err := models.GetAccount(tx.DB(), input.AccountId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("account_id", "account does not exist")
		}
		return nil, err
	}

	existing, err := models.AccountTransactionsInOrder(tx.DB(), input.AccountId)
	if err != nil {
		return nil, err
	}

	// The new row sorts after every existing row with the same or an
	// earlier date (ids are monotonic). Rows dated strictly later have to
	// absorb the new amount into their running balance.
	txnDate := utils.NormalizeDate(input.TransactionDate)
	prior := decimal.Zero
	var later []models.AccountTransaction
	for _, existingRow := range existing {
		if existingRow.TransactionDate.After(txnDate) {
			later = append(later, existingRow)
			continue
		}
		prior = utils.AddRound2(prior, existingRow.Amount)
	}

	amount := utils.Round2(input.Amount)
	row := models.AccountTransaction{
		AccountId:       input.AccountId,
		TransactionType: input.TransactionType,
		Amount:          amount,
		BalanceAfter:    utils.AddRound2(prior, amount),
		ReferenceType:   input.ReferenceType,
		ReferenceId:     input.ReferenceId,
		TransactionDate: txnDate,
		Note:            input.Note,
	}
	if err := tx.DB().Create(&row).Error; err != nil {
		return nil, err
	}

	running := row.BalanceAfter
	for _, laterRow := range later {
		running = utils.AddRound2(running, laterRow.Amount)
		if laterRow.BalanceAfter.Equal(running) {
			continue
		}
		err := tx.DB().Model(&models.AccountTransaction{}).
			Where("id = ?", laterRow.ID).
			Update("balance_after", running).Error
		if err != nil {
			return nil, err
		}
	}
	return &row, nil
}

// GetBalance sums amounts up to and including asOf (nil means everything).
// The summed value is cross-checked against the balance_after of the latest
// row; disagreement means the trail has drifted and is logged. The sum is
// authoritative, the trail is repaired by RebuildBalanceTrail.
func (s *LedgerStore) GetBalance(ctx context.Context, accountId int, asOf *time.Time) (decimal.Decimal, error) {
	db := s.db.WithContext(ctx)
	if _, err := models.GetAccount(db, accountId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return decimal.Zero, utils.NewValidationError("account_id", "account does not exist")
		}
		return decimal.Zero, err
	}

	query := db.Where("account_id = ?", accountId)
	cutoff := time.Time{}
	if asOf != nil {
		cutoff = utils.NormalizeDate(*asOf)
		query = query.Where("transaction_date <= ?", cutoff)
	}
	var rows []models.AccountTransaction
	if err := query.Order("transaction_date, id").Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	summed := decimal.Zero
	for _, row := range rows {
		summed = utils.AddRound2(summed, row.Amount)
	}

	if len(rows) > 0 {
		trail := rows[len(rows)-1].BalanceAfter
		if !trail.Equal(summed) {
			config.LogWarn(s.logger, "ledgerWorkflow.go", "GetBalance", "balance trail drift",
				map[string]any{"account_id": accountId, "summed": summed.String(), "trail": trail.String(), "as_of": cutoff},
				errors.New("balance strategies disagree"))
		}
	}
	return summed, nil
}

// GetStatement returns the account's transactions between from and to
// inclusive, in ledger order.
func (s *LedgerStore) GetStatement(ctx context.Context, accountId int, from, to *time.Time) ([]models.AccountTransaction, error) {
	db := s.db.WithContext(ctx)
	if _, err := models.GetAccount(db, accountId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("account_id", "account does not exist")
		}
		return nil, err
	}
	query := db.Where("account_id = ?", accountId)
	if from != nil {
		query = query.Where("transaction_date >= ?", utils.NormalizeDate(*from))
	}
	if to != nil {
		query = query.Where("transaction_date <= ?", utils.NormalizeDate(*to))
	}
	var rows []models.AccountTransaction
	if err := query.Order("transaction_date, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
