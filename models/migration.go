package models

import "gorm.io/gorm"

func MigrateTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{}, &AccountTransaction{},
		&Sheet{}, &SheetBatch{},
		&BatchAllocation{}, &BatchAllocationDetail{},
		&Sale{}, &SaleLine{}, &Payment{},
		&EntityVersion{},
	)
}
