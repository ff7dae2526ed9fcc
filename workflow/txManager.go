package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/utils"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

type TxState string

const (
	TxStateIdle       TxState = "Idle"
	TxStateInProgress TxState = "InProgress"
	TxStateCommitted  TxState = "Committed"
	TxStateRolledBack TxState = "RolledBack"
	TxStateError      TxState = "Error"
)

var (
	ErrNoActiveTransaction = errors.New("no active transaction")
	ErrTransactionClosed   = errors.New("transaction already closed")
)

// TxManager owns the storage transaction machinery. The outermost Begin
// opens a real database transaction; nested Begins stack savepoints, so an
// inner rollback undoes only its own work while the outer rollback undoes
// everything. A weighted semaphore bounds how many transactions are in
// flight at once, protecting the single embedded storage connection.
type TxManager struct {
	db     *gorm.DB
	logger *logrus.Logger
	sem    *semaphore.Weighted
}

func NewTxManager(db *gorm.DB, logger *logrus.Logger, maxInFlight int64) *TxManager {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &TxManager{
		db:     db,
		logger: logger,
		sem:    semaphore.NewWeighted(maxInFlight),
	}
}

// Tx is one logical unit of work. Not safe for concurrent use; the named
// mutexes serialize callers before they get here.
type Tx struct {
	manager    *TxManager
	db         *gorm.DB
	state      TxState
	depth      int
	savepoints []string
	released   bool
}

// Begin opens the outermost transaction. Once begun, the unit of work runs
// to Commit or full Rollback; there is no mid-transaction cancellation.
func (m *TxManager) Begin(ctx context.Context) (*Tx, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	gtx := m.db.WithContext(ctx).Begin()
	if gtx.Error != nil {
		m.sem.Release(1)
		return nil, fmt.Errorf("begin transaction: %w", gtx.Error)
	}
	return &Tx{
		manager: m,
		db:      gtx,
		state:   TxStateInProgress,
	}, nil
}

// DB exposes the transactional handle for storage calls.
func (t *Tx) DB() *gorm.DB { return t.db }

func (t *Tx) State() TxState { return t.state }

func (t *Tx) Depth() int { return t.depth }

// Begin opens a nested scope backed by a savepoint.
func (t *Tx) Begin() error {
	if t.state != TxStateInProgress {
		return ErrNoActiveTransaction
	}
	t.depth++
	name := fmt.Sprintf("sp_%d", t.depth)
	if err := t.db.SavePoint(name).Error; err != nil {
		t.depth--
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	t.savepoints = append(t.savepoints, name)
	return nil
}

// Commit closes the innermost open scope. At depth zero it commits the real
// transaction; inner commits simply release their savepoint.
func (t *Tx) Commit() error {
	if t.state != TxStateInProgress {
		return ErrTransactionClosed
	}
	if t.depth > 0 {
		t.savepoints = t.savepoints[:len(t.savepoints)-1]
		t.depth--
		return nil
	}
	err := t.db.Commit().Error
	t.release()
	if err != nil {
		t.state = TxStateError
		return fmt.Errorf("commit: %w", err)
	}
	t.state = TxStateCommitted
	return nil
}

// Rollback undoes the innermost open scope. At depth zero everything since
// the outer Begin is rolled back.
func (t *Tx) Rollback() error {
	if t.state != TxStateInProgress {
		return ErrTransactionClosed
	}
	if t.depth > 0 {
		name := t.savepoints[len(t.savepoints)-1]
		t.savepoints = t.savepoints[:len(t.savepoints)-1]
		t.depth--
		if err := t.db.RollbackTo(name).Error; err != nil {
			return fmt.Errorf("rollback to %s: %w", name, err)
		}
		return nil
	}
	err := t.db.Rollback().Error
	t.release()
	if err != nil {
		t.state = TxStateError
		return fmt.Errorf("rollback: %w", err)
	}
	t.state = TxStateRolledBack
	return nil
}

func (t *Tx) release() {
	if !t.released {
		t.released = true
		t.manager.sem.Release(1)
	}
}

// RunInTransaction is the orchestration wrapper every engine operation goes
// through: begin, run, commit; on error or panic the whole transaction is
// rolled back and the failure surfaces as a TransactionAbortedError.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, beginErr := m.Begin(ctx)
	if beginErr != nil {
		return beginErr
	}
	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				config.LogError(m.logger, "txManager.go", "RunInTransaction", "rollback after panic", nil, rbErr)
			}
			err = &utils.TransactionAbortedError{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			config.LogError(m.logger, "txManager.go", "RunInTransaction", "rollback", nil, rbErr)
		}
		return &utils.TransactionAbortedError{Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &utils.TransactionAbortedError{Cause: err}
	}
	return nil
}
