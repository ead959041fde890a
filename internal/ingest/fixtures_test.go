package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

// sourceRow mirrors the parquet layout of the card transaction exports,
// including the pandas index column.
type sourceRow struct {
	TransactionID        string    `parquet:"transaction_id"`
	TransactionTimestamp time.Time `parquet:"transaction_timestamp"`
	CardID               int64     `parquet:"card_id"`
	ExpiryDate           *string   `parquet:"expiry_date,optional"`
	IssuerBankName       *string   `parquet:"issuer_bank_name,optional"`
	MerchantID           *int64    `parquet:"merchant_id,optional"`
	MerchantMCC          *int64    `parquet:"merchant_mcc,optional"`
	MCCCategory          *string   `parquet:"mcc_category,optional"`
	MerchantCity         *string   `parquet:"merchant_city,optional"`
	TransactionType      *string   `parquet:"transaction_type,optional"`
	AmountKZT            *float64  `parquet:"transaction_amount_kzt,optional"`
	OriginalAmount       *float64  `parquet:"original_amount,optional"`
	Currency             *string   `parquet:"transaction_currency,optional"`
	AcquirerCountry      *string   `parquet:"acquirer_country_iso,optional"`
	POSEntryMode         *string   `parquet:"pos_entry_mode,optional"`
	WalletType           *string   `parquet:"wallet_type,optional"`
	IndexLevel0          *int64    `parquet:"__index_level_0__,optional"`
}

// looseRow relaxes the required columns so tests can produce rows the
// coercer must drop.
type looseRow struct {
	TransactionID        *string   `parquet:"transaction_id,optional"`
	TransactionTimestamp time.Time `parquet:"transaction_timestamp"`
	CardID               *int64    `parquet:"card_id,optional"`
	MerchantCity         *string   `parquet:"merchant_city,optional"`
}

var testCities = []string{"Almaty", "Astana", "Shymkent", "Karaganda"}

// makeSourceRow builds a deterministic row; the transaction id encodes i so
// ordering checks can decode it.
func makeSourceRow(i int) sourceRow {
	city := testCities[i%len(testCities)]
	wallet := "Apple Pay"
	if i%3 == 0 {
		wallet = "Google Pay"
	}
	amount := float64(i) * 125.5
	merchant := int64(7000 + i%50)
	mcc := int64(5411)
	idx := int64(i)
	return sourceRow{
		TransactionID:        fmt.Sprintf("tx-%08d", i),
		TransactionTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
		CardID:               int64(1000 + i%97),
		MerchantID:           &merchant,
		MerchantMCC:          &mcc,
		MerchantCity:         &city,
		AmountKZT:            &amount,
		WalletType:           &wallet,
		IndexLevel0:          &idx,
	}
}

func makeSourceRows(n int) []sourceRow {
	rows := make([]sourceRow, n)
	for i := range rows {
		rows[i] = makeSourceRow(i)
	}
	return rows
}

// writeParquetFile writes rows into a fresh parquet file under a temp dir
// and returns its path.
func writeParquetFile[T any](t *testing.T, rows []T, opts ...parquet.WriterOption) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.parquet")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer func() { _ = f.Close() }()

	writer := parquet.NewGenericWriter[T](f, opts...)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			t.Fatalf("failed to write test data: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return path
}

func strPtr(s string) *string {
	return &s
}

func i64Ptr(v int64) *int64 {
	return &v
}

func f64Ptr(v float64) *float64 {
	return &v
}
