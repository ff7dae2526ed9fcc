package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/appctx"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// Engine is the public face of the accounting core. Every operation takes
// the named mutexes for the resource classes it touches, runs one
// transaction through the TxManager, and returns an explicit Result; the
// persistence flusher is marked dirty only after a successful commit.
type Engine struct {
	db        *gorm.DB
	logger    *logrus.Logger
	txm       *TxManager
	locks     *LockSet
	ledger    *LedgerStore
	allocator *BatchAllocator
	reconcile *Reconciler
	flusher   *Flusher
}

type EngineOptions struct {
	// MaxInFlight bounds concurrent storage transactions (default 4).
	MaxInFlight int64
	// Sink, when set, enables the debounced background flush after commits.
	Sink          Sink
	FlushDebounce time.Duration
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, opts EngineOptions) *Engine {
	ledger := NewLedgerStore(db, logger)
	e := &Engine{
		db:        db,
		logger:    logger,
		txm:       NewTxManager(db, logger, opts.MaxInFlight),
		locks:     NewLockSet(),
		ledger:    ledger,
		allocator: NewBatchAllocator(db, logger),
		reconcile: NewReconciler(db, logger, ledger),
	}
	if opts.Sink != nil {
		e.flusher = NewFlusher(db, logger, opts.Sink, opts.FlushDebounce)
	}
	return e
}

func (e *Engine) Ledger() *LedgerStore       { return e.ledger }
func (e *Engine) Allocator() *BatchAllocator { return e.allocator }
func (e *Engine) Reconciler() *Reconciler    { return e.reconcile }
func (e *Engine) TxManager() *TxManager      { return e.txm }
func (e *Engine) Flusher() *Flusher          { return e.flusher }

func (e *Engine) markDirty() {
	if e.flusher != nil {
		e.flusher.MarkDirty()
	}
}

// logFailure records a failed operation with whatever caller identity the
// context carries.
func (e *Engine) logFailure(ctx context.Context, funcName string, err error) {
	data := map[string]any{}
	if id, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok {
		data["correlation_id"] = id
	}
	if user, ok := appctx.GetString(ctx, appctx.ContextKeyUserName); ok {
		data["user_name"] = user
	}
	config.LogError(e.logger, "engine.go", funcName, "operation failed", data, err)
}

// CreateSale inserts the sale document, consumes inventory for every line
// and posts the customer ledger row, all in one transaction. A failure in
// any line leaves neither inventory nor ledger changed.
func (e *Engine) CreateSale(ctx context.Context, input *models.NewSale) utils.Result[*models.Sale] {
	return utils.Guard(func() (*models.Sale, error) {
		if err := utils.ValidateStruct(input); err != nil {
			return nil, err
		}
		release, err := e.locks.Acquire(ctx, LockSales, LockInventory, LockAccounting)
		if err != nil {
			return nil, err
		}
		defer release()

		var sale *models.Sale
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			db := tx.DB()

			customer, err := models.GetAccount(db, input.CustomerId)
			if err != nil {
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return utils.NewValidationError("customer_id", "customer does not exist")
				}
				return err
			}
			if customer.AccountType != models.AccountTypeCustomer {
				return utils.NewValidationError("customer_id", "account is not a customer")
			}

			doc := models.Sale{
				CustomerId:  input.CustomerId,
				SaleDate:    utils.NormalizeDate(input.SaleDate),
				TotalAmount: decimal.Zero,
				Note:        input.Note,
			}
			for _, line := range input.Lines {
				if !line.Quantity.IsPositive() {
					return utils.NewValidationError("quantity", "must be positive")
				}
				lineTotal := utils.Round2(line.Quantity.Mul(line.UnitPrice))
				doc.TotalAmount = utils.AddRound2(doc.TotalAmount, lineTotal)
				doc.Lines = append(doc.Lines, models.SaleLine{
					SheetId:   line.SheetId,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice,
					LineTotal: lineTotal,
					Cogs:      decimal.Zero,
				})
			}
			if err := db.Create(&doc).Error; err != nil {
				return err
			}

			for i := range doc.Lines {
				allocation, err := e.allocator.ConsumeQuantity(tx, doc.Lines[i].ID, doc.Lines[i].SheetId, doc.Lines[i].Quantity, input.Lines[i].BatchId)
				if err != nil {
					return err
				}
				doc.Lines[i].Cogs = allocation.TotalCogs
				if err := db.Model(&models.SaleLine{}).
					Where("id = ?", doc.Lines[i].ID).
					Update("cogs", allocation.TotalCogs).Error; err != nil {
					return err
				}
			}

			if _, err := e.ledger.PostTransaction(tx, &PostTransactionInput{
				AccountId:       doc.CustomerId,
				TransactionType: models.TransactionTypeSale,
				Amount:          doc.TotalAmount,
				ReferenceType:   models.ReferenceTypeSale,
				ReferenceId:     doc.ID,
				TransactionDate: doc.SaleDate,
				Note:            doc.Note,
			}); err != nil {
				return err
			}
			sale = &doc
			return nil
		})
		if err != nil {
			e.logFailure(ctx, "CreateSale", err)
			return nil, err
		}
		e.markDirty()
		return sale, nil
	})
}

// DeleteSale reverses a sale: releases its allocations back into the
// batches, removes the document and its ledger row, and repairs the
// account's balance trail.
func (e *Engine) DeleteSale(ctx context.Context, saleId int) utils.Result[*models.Sale] {
	return utils.Guard(func() (*models.Sale, error) {
		release, err := e.locks.Acquire(ctx, LockSales, LockInventory, LockAccounting)
		if err != nil {
			return nil, err
		}
		defer release()

		var sale models.Sale
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			db := tx.DB()
			if err := db.Preload("Lines").Where("id = ?", saleId).First(&sale).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.NewValidationError("sale_id", "sale does not exist")
				}
				return err
			}

			for _, line := range sale.Lines {
				allocation, err := models.AllocationForSaleLine(db, line.ID)
				if err != nil {
					return err
				}
				if allocation == nil {
					continue
				}
				if err := e.allocator.ReleaseAllocation(tx, allocation.ID); err != nil {
					return err
				}
			}

			if err := db.Where("reference_type = ? AND reference_id = ?", models.ReferenceTypeSale, sale.ID).
				Delete(&models.AccountTransaction{}).Error; err != nil {
				return err
			}
			if err := db.Where("sale_id = ?", sale.ID).Delete(&models.SaleLine{}).Error; err != nil {
				return err
			}
			if err := db.Delete(&models.Sale{}, sale.ID).Error; err != nil {
				return err
			}
			return e.reconcile.RebuildBalanceTrail(tx, sale.CustomerId)
		})
		if err != nil {
			e.logFailure(ctx, "DeleteSale", err)
			return nil, err
		}
		e.markDirty()
		return &sale, nil
	})
}

// CreatePurchase receives a batch and posts the supplier ledger row.
func (e *Engine) CreatePurchase(ctx context.Context, input *models.NewBatch) utils.Result[*models.SheetBatch] {
	return utils.Guard(func() (*models.SheetBatch, error) {
		release, err := e.locks.Acquire(ctx, LockInventory, LockAccounting)
		if err != nil {
			return nil, err
		}
		defer release()

		var batch *models.SheetBatch
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			b, err := e.allocator.ReceiveBatch(tx, input)
			if err != nil {
				return err
			}
			if _, err := e.ledger.PostTransaction(tx, &PostTransactionInput{
				AccountId:       b.SupplierId,
				TransactionType: models.TransactionTypePurchase,
				Amount:          b.TotalCost,
				ReferenceType:   models.ReferenceTypeBatch,
				ReferenceId:     b.ID,
				TransactionDate: b.ReceivedDate,
			}); err != nil {
				return err
			}
			batch = b
			return nil
		})
		if err != nil {
			e.logFailure(ctx, "CreatePurchase", err)
			return nil, err
		}
		e.markDirty()
		return batch, nil
	})
}

// RecordPayment posts a payment against a customer or supplier ledger.
// Payments always reduce what the account owes.
func (e *Engine) RecordPayment(ctx context.Context, input *models.NewPayment) utils.Result[*models.Payment] {
	return utils.Guard(func() (*models.Payment, error) {
		if err := utils.ValidateStruct(input); err != nil {
			return nil, err
		}
		if !input.Amount.IsPositive() {
			return nil, utils.NewValidationError("amount", "must be positive")
		}
		release, err := e.locks.Acquire(ctx, LockAccounting)
		if err != nil {
			return nil, err
		}
		defer release()

		var payment models.Payment
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			db := tx.DB()
			if _, err := models.GetAccount(db, input.AccountId); err != nil {
				if errors.Is(err, utils.ErrorRecordNotFound) {
					return utils.NewValidationError("account_id", "account does not exist")
				}
				return err
			}
			payment = models.Payment{
				AccountId:   input.AccountId,
				PaymentDate: utils.NormalizeDate(input.PaymentDate),
				Amount:      utils.Round2(input.Amount),
				Method:      input.Method,
				Note:        input.Note,
			}
			if err := db.Create(&payment).Error; err != nil {
				return err
			}
			_, err := e.ledger.PostTransaction(tx, &PostTransactionInput{
				AccountId:       payment.AccountId,
				TransactionType: models.TransactionTypePayment,
				Amount:          payment.Amount.Neg(),
				ReferenceType:   models.ReferenceTypePayment,
				ReferenceId:     payment.ID,
				TransactionDate: payment.PaymentDate,
				Note:            payment.Note,
			})
			return err
		})
		if err != nil {
			e.logFailure(ctx, "RecordPayment", err)
			return nil, err
		}
		e.markDirty()
		return &payment, nil
	})
}

// RestockBatch re-credits quantity to a batch outside a sale reversal
// (customer returns, miscounts). It runs under the batch's optimistic
// version, the secondary guard for single-row races outside the inventory
// mutex's reach.
func (e *Engine) RestockBatch(ctx context.Context, batchId int, quantity decimal.Decimal, maxRetries int) utils.Result[*models.SheetBatch] {
	return utils.Guard(func() (*models.SheetBatch, error) {
		if !quantity.IsPositive() {
			return nil, utils.NewValidationError("quantity", "must be positive")
		}
		release, err := e.locks.Acquire(ctx, LockInventory)
		if err != nil {
			return nil, err
		}
		defer release()

		var batch models.SheetBatch
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			return WithOptimisticLock(tx.DB(), e.logger, "sheet_batches", batchId, maxRetries, func(db *gorm.DB) error {
				if err := db.Where("id = ?", batchId).First(&batch).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return utils.NewValidationError("batch_id", "batch does not exist")
					}
					return err
				}
				newRemaining := batch.QuantityRemaining.Add(quantity)
				if newRemaining.GreaterThan(batch.QuantityOriginal) {
					return utils.NewValidationError("quantity", "restock would exceed original batch quantity")
				}
				batch.QuantityRemaining = newRemaining
				return db.Model(&models.SheetBatch{}).
					Where("id = ?", batchId).
					Update("quantity_remaining", newRemaining).Error
			})
		})
		if err != nil {
			e.logFailure(ctx, "RestockBatch", err)
			return nil, err
		}
		e.markDirty()
		return &batch, nil
	})
}

// RecalculateAccount is the operator entry point wrapping the reconciler
// in its own transaction and lock.
func (e *Engine) RecalculateAccount(ctx context.Context, accountId int) utils.Result[int] {
	return utils.Guard(func() (int, error) {
		release, err := e.locks.Acquire(ctx, LockAccounting)
		if err != nil {
			return 0, err
		}
		defer release()

		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			return e.reconcile.RecalculateAccount(tx, accountId)
		})
		if err != nil {
			e.logFailure(ctx, "RecalculateAccount", err)
			return 0, err
		}
		e.markDirty()
		return accountId, nil
	})
}

// RecalculateAll rebuilds every ledger, all-or-nothing.
func (e *Engine) RecalculateAll(ctx context.Context) utils.Result[int] {
	return utils.Guard(func() (int, error) {
		release, err := e.locks.Acquire(ctx, LockAccounting)
		if err != nil {
			return 0, err
		}
		defer release()

		var count int
		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			n, err := e.reconcile.RecalculateAll(tx)
			count = n
			return err
		})
		if err != nil {
			e.logFailure(ctx, "RecalculateAll", err)
			return 0, err
		}
		e.markDirty()
		return count, nil
	})
}

// RebuildBalanceTrail recomputes an account's running totals in place.
func (e *Engine) RebuildBalanceTrail(ctx context.Context, accountId int) utils.Result[int] {
	return utils.Guard(func() (int, error) {
		release, err := e.locks.Acquire(ctx, LockAccounting)
		if err != nil {
			return 0, err
		}
		defer release()

		err = e.txm.RunInTransaction(ctx, func(tx *Tx) error {
			return e.reconcile.RebuildBalanceTrail(tx, accountId)
		})
		if err != nil {
			e.logFailure(ctx, "RebuildBalanceTrail", err)
			return 0, err
		}
		e.markDirty()
		return accountId, nil
	})
}

// Close flushes pending state and stops the background flusher.
func (e *Engine) Close(ctx context.Context) error {
	if e.flusher == nil {
		return nil
	}
	err := e.flusher.Flush(ctx)
	e.flusher.Close()
	return err
}
