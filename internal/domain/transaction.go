package domain

import (
	"time"
)

// TableName is the relational table ingested rows land in. The NL->SQL
// system instruction, the schema bootstrap DDL and every sink adapter refer
// to this one name.
const TableName = "transaction"

// Transaction is one card transaction row as stored in the sink. Nullable
// columns are pointers; nil means the source value was absent or could not
// be coerced to the column type.
type Transaction struct {
	TransactionID        string    // unique per sink policy, not enforced by the loader
	TransactionTimestamp time.Time // stored in UTC
	CardID               int64
	ExpiryDate           *string
	IssuerBankName       *string
	MerchantID           *int64
	MerchantMCC          *int64
	MCCCategory          *string
	MerchantCity         *string
	TransactionType      *string
	TransactionAmountKZT *float64
	OriginalAmount       *float64
	TransactionCurrency  *string
	AcquirerCountryISO   *string
	POSEntryMode         *string
	WalletType           *string
	IndexLevel0          *int64 // read from "__index_level_0__", a pandas export artifact
}
