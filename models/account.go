package models

import (
	"time"

	"github.com/zmsaddi/metalflow_backend/utils"
	"gorm.io/gorm"
)

// Account is a counterparty (customer or supplier). The engine owns nothing
// about it beyond identity and type; contact details live outside the core.
type Account struct {
	ID          int         `gorm:"primary_key" json:"id"`
	Name        string      `gorm:"size:100;not null;index" json:"name"`
	AccountType AccountType `gorm:"size:10;not null;index" json:"account_type"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name        string      `json:"name" validate:"required,max=100"`
	AccountType AccountType `json:"account_type" validate:"required"`
}

func CreateAccount(db *gorm.DB, input *NewAccount) (*Account, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.AccountType.Valid() {
		return nil, utils.NewValidationError("account_type", "must be customer or supplier")
	}
	account := Account{
		Name:        input.Name,
		AccountType: input.AccountType,
	}
	if err := db.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccount(db *gorm.DB, id int) (*Account, error) {
	var account Account
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &account, nil
}

func ListAccounts(db *gorm.DB, accountType AccountType) ([]Account, error) {
	var accounts []Account
	query := db.Order("id")
	if accountType != "" {
		query = query.Where("account_type = ?", accountType)
	}
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
