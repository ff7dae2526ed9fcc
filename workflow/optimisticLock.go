package workflow

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zmsaddi/metalflow_backend/config"
	"github.com/zmsaddi/metalflow_backend/models"
	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

const optimisticBackoffStep = 20 * time.Millisecond

var errStaleVersion = errors.New("stale version")

// WithOptimisticLock runs fn under a version check on the generic
// (entity_type, entity_id) registry. The version is read before fn and
// swapped forward with an atomic compare-and-swap afterwards; if a
// concurrent writer moved it, the attempt is rolled back and fn retried
// from scratch with incremental backoff, up to maxRetries, then
// ConflictError.
//
// Each attempt runs in its own transaction on db (a savepoint when db is
// already transactional), so a conflicted attempt leaves no writes behind
// and the retry starts from clean state.
func WithOptimisticLock(db *gorm.DB, logger *logrus.Logger, entityType string, entityId int, maxRetries int, fn func(db *gorm.DB) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		if attempt > 0 {
			time.Sleep(optimisticBackoffStep * time.Duration(attempt))
		}

		version, err := currentVersion(db, entityType, entityId)
		if err != nil {
			return err
		}

		err = db.Transaction(func(txdb *gorm.DB) error {
			if err := fn(txdb); err != nil {
				return err
			}
			res := txdb.Model(&models.EntityVersion{}).
				Where("entity_type = ? AND entity_id = ? AND version = ?", entityType, entityId, version).
				Update("version", version+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return errStaleVersion
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStaleVersion) {
			return err
		}
		config.LogWarn(logger, "optimisticLock.go", "WithOptimisticLock", "version conflict, retrying",
			map[string]any{"entity_type": entityType, "entity_id": entityId, "attempt": attempt + 1},
			errStaleVersion)
	}
	return &utils.ConflictError{EntityType: entityType, EntityId: entityId, Attempts: attempts}
}

// currentVersion reads the registry row, creating it at version 0 on first
// touch. A create race falls back to re-reading the winner's row.
func currentVersion(db *gorm.DB, entityType string, entityId int) (int, error) {
	var row models.EntityVersion
	err := db.Where("entity_type = ? AND entity_id = ?", entityType, entityId).First(&row).Error
	if err == nil {
		return row.Version, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	row = models.EntityVersion{EntityType: entityType, EntityId: entityId, Version: 0}
	if createErr := db.Create(&row).Error; createErr != nil {
		if readErr := db.Where("entity_type = ? AND entity_id = ?", entityType, entityId).First(&row).Error; readErr != nil {
			return 0, createErr
		}
	}
	return row.Version, nil
}
