package workflow

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// BatchAllocator consumes sheet quantity from received batches, oldest lot
// first, and records the cost basis it used. All mutation happens on the
// caller's transaction so a failed sale leaves inventory untouched.
type BatchAllocator struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewBatchAllocator(db *gorm.DB, logger *logrus.Logger) *BatchAllocator {
	return &BatchAllocator{db: db, logger: logger}
}

type allocationStep struct {
	batch    models.SheetBatch
	quantity decimal.Decimal
}

// ConsumeQuantity takes quantity from the sheet's batches. With an explicit
// batch id only that batch is eligible; otherwise batches are walked in
// (received_date, id) order, possibly spanning several lots. The plan is
// computed fully before any batch is decremented, so an
// InsufficientStockError mutates nothing.
func (a *BatchAllocator) ConsumeQuantity(tx *Tx, saleLineId int, sheetId int, quantity decimal.Decimal, explicitBatchId *int) (*models.BatchAllocation, error) {
	if tx == nil || tx.State() != TxStateInProgress {
		return nil, ErrNoActiveTransaction
	}
	if !quantity.IsPositive() {
		return nil, utils.NewValidationError("quantity", "must be positive")
	}
	db := tx.DB()

	sheet, err := models.GetSheet(db, sheetId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("sheet_id", "sheet does not exist")
		}
		return nil, err
	}

	var steps []allocationStep
	if explicitBatchId != nil {
		steps, err = a.planExplicit(db, sheetId, quantity, *explicitBatchId)
	} else {
		steps, err = a.planFifo(db, sheetId, quantity)
	}
	if err != nil {
		return nil, err
	}

	allocation := models.BatchAllocation{
		SaleLineId:    saleLineId,
		SheetId:       sheetId,
		TotalQuantity: quantity,
		TotalCogs:     decimal.Zero,
		CorrelationId: uuid.NewString(),
	}

	for _, step := range steps {
		// Pricing is per kilogram; the sheet's unit weight turns it into a
		// per-piece cost.
		unitCost := step.batch.PricePerKg.Mul(sheet.WeightKg)
		allocation.TotalCogs = utils.AddRound2(allocation.TotalCogs, step.quantity.Mul(unitCost))
		allocation.Details = append(allocation.Details, models.BatchAllocationDetail{
			BatchId:       step.batch.ID,
			QuantityTaken: step.quantity,
			UnitCostUsed:  unitCost,
		})
	}

	for _, step := range steps {
		newRemaining := step.batch.QuantityRemaining.Sub(step.quantity)
		res := db.Model(&models.SheetBatch{}).
			Where("id = ? AND quantity_remaining = ?", step.batch.ID, step.batch.QuantityRemaining).
			Update("quantity_remaining", newRemaining)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			// A writer outside our locks touched the batch between plan and
			// apply; the caller's transaction rolls everything back.
			return nil, &utils.ConflictError{EntityType: "sheet_batches", EntityId: step.batch.ID, Attempts: 1}
		}
	}

	if err := db.Create(&allocation).Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (a *BatchAllocator) planExplicit(db *gorm.DB, sheetId int, quantity decimal.Decimal, batchId int) ([]allocationStep, error) {
	var batch models.SheetBatch
	if err := db.Where("id = ? AND sheet_id = ?", batchId, sheetId).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("batch_id", "batch does not exist for this sheet")
		}
		return nil, err
	}
	if batch.QuantityRemaining.LessThan(quantity) {
		return nil, &utils.InsufficientStockError{
			SheetId:   sheetId,
			BatchId:   batchId,
			Requested: quantity,
			Available: batch.QuantityRemaining,
		}
	}
	return []allocationStep{{batch: batch, quantity: quantity}}, nil
}

func (a *BatchAllocator) planFifo(db *gorm.DB, sheetId int, quantity decimal.Decimal) ([]allocationStep, error) {
	batches, err := models.EligibleBatches(db, sheetId)
	if err != nil {
		return nil, err
	}
	available := decimal.Zero
	for _, b := range batches {
		available = available.Add(b.QuantityRemaining)
	}
	if available.LessThan(quantity) {
		return nil, &utils.InsufficientStockError{
			SheetId:   sheetId,
			Requested: quantity,
			Available: available,
		}
	}

	var steps []allocationStep
	left := quantity
	for _, batch := range batches {
		if !left.IsPositive() {
			break
		}
		take := batch.QuantityRemaining
		if take.GreaterThan(left) {
			take = left
		}
		steps = append(steps, allocationStep{batch: batch, quantity: take})
		left = left.Sub(take)
	}
	return steps, nil
}

// ReleaseAllocation re-credits every (batch, quantity_taken) pair of an
// allocation, the compensating transaction used when a sale is deleted.
func (a *BatchAllocator) ReleaseAllocation(tx *Tx, allocationId int) error {
	if tx == nil || tx.State() != TxStateInProgress {
		return ErrNoActiveTransaction
	}
	db := tx.DB()

	allocation, err := models.GetAllocation(db, allocationId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("allocation_id", "allocation does not exist")
		}
		return err
	}
	if allocation.ReleasedAt != nil {
		return utils.NewValidationError("allocation_id", "allocation already released")
	}

	for _, detail := range allocation.Details {
		var batch models.SheetBatch
		if err := db.Where("id = ?", detail.BatchId).First(&batch).Error; err != nil {
			return err
		}
		newRemaining := batch.QuantityRemaining.Add(detail.QuantityTaken)
		if newRemaining.GreaterThan(batch.QuantityOriginal) {
			return utils.NewValidationError("quantity_remaining", "release would exceed original batch quantity")
		}
		if err := db.Model(&models.SheetBatch{}).
			Where("id = ?", batch.ID).
			Update("quantity_remaining", newRemaining).Error; err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	return db.Model(&models.BatchAllocation{}).
		Where("id = ?", allocation.ID).
		Update("released_at", now).Error
}

// ReceiveBatch records a purchased lot. total_cost is the supplier-side
// source fact the reconciler posts against the supplier's ledger.
func (a *BatchAllocator) ReceiveBatch(tx *Tx, input *models.NewBatch) (*models.SheetBatch, error) {
	if tx == nil || tx.State() != TxStateInProgress {
		return nil, ErrNoActiveTransaction
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewValidationError("quantity", "must be positive")
	}
	if input.PricePerKg.IsNegative() {
		return nil, utils.NewValidationError("price_per_kg", "must not be negative")
	}
	db := tx.DB()

	sheet, err := models.GetSheet(db, input.SheetId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("sheet_id", "sheet does not exist")
		}
		return nil, err
	}
	supplier, err := models.GetAccount(db, input.SupplierId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("supplier_id", "supplier does not exist")
		}
		return nil, err
	}
	if supplier.AccountType != models.AccountTypeSupplier {
		return nil, utils.NewValidationError("supplier_id", "account is not a supplier")
	}

	batch := models.SheetBatch{
		SheetId:           input.SheetId,
		SupplierId:        input.SupplierId,
		ReceivedDate:      utils.NormalizeDate(input.ReceivedDate),
		QuantityOriginal:  input.Quantity,
		QuantityRemaining: input.Quantity,
		PricePerKg:        input.PricePerKg,
		TotalCost:         utils.Round2(input.Quantity.Mul(input.PricePerKg).Mul(sheet.WeightKg)),
	}
	if err := db.Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// AvailableQuantity is the sum of quantity_remaining across the sheet's
// batches.
func (a *BatchAllocator) AvailableQuantity(db *gorm.DB, sheetId int) (decimal.Decimal, error) {
	batches, err := models.EligibleBatches(db, sheetId)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.QuantityRemaining)
	}
	return total, nil
}
