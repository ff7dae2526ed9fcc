package models

type AccountType string

const (
	AccountTypeCustomer AccountType = "customer"
	AccountTypeSupplier AccountType = "supplier"
)

type TransactionType string

const (
	TransactionTypeSale       TransactionType = "sale"
	TransactionTypePurchase   TransactionType = "purchase"
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// ReferenceType identifies the originating document of a ledger row.
type ReferenceType string

const (
	ReferenceTypeSale    ReferenceType = "SL"
	ReferenceTypeBatch   ReferenceType = "BT"
	ReferenceTypePayment ReferenceType = "PM"
	ReferenceTypeManual  ReferenceType = "MJ"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeSale, TransactionTypePurchase, TransactionTypePayment, TransactionTypeAdjustment:
		return true
	}
	return false
}

func (t AccountType) Valid() bool {
	return t == AccountTypeCustomer || t == AccountTypeSupplier
}
