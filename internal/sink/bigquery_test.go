package sink

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/ashirbekov/txinsights/internal/domain"
)

func TestToTransactionRow(t *testing.T) {
	city := "Almaty"
	amount := 1525.5
	merchant := int64(7001)
	tx := domain.Transaction{
		TransactionID:        "tx-0001",
		TransactionTimestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		CardID:               9001,
		MerchantID:           &merchant,
		MerchantCity:         &city,
		TransactionAmountKZT: &amount,
	}

	row := toTransactionRow(&tx)

	if row.TransactionID != "tx-0001" || row.CardID != 9001 {
		t.Errorf("required fields = %q/%d", row.TransactionID, row.CardID)
	}
	if !row.TransactionTimestamp.Equal(tx.TransactionTimestamp) {
		t.Errorf("timestamp = %v", row.TransactionTimestamp)
	}
	if !row.MerchantCity.Valid || row.MerchantCity.StringVal != "Almaty" {
		t.Errorf("merchant city = %+v", row.MerchantCity)
	}
	if !row.MerchantID.Valid || row.MerchantID.Int64 != 7001 {
		t.Errorf("merchant id = %+v", row.MerchantID)
	}
	if !row.TransactionAmountKZT.Valid || row.TransactionAmountKZT.Float64 != 1525.5 {
		t.Errorf("amount = %+v", row.TransactionAmountKZT)
	}
	// Unset pointers become invalid Null values, not empty strings.
	if row.ExpiryDate.Valid || row.WalletType.Valid || row.IndexLevel0.Valid {
		t.Errorf("unset optionals should be null: %+v %+v %+v",
			row.ExpiryDate, row.WalletType, row.IndexLevel0)
	}
}

// The inferred table schema must line up with the relational column set,
// in the same order, or BigQuery results would disagree with the other sinks.
func TestTransactionRowSchemaMatchesColumns(t *testing.T) {
	schema, err := bigquery.InferSchema(transactionRow{})
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}

	want := domain.ColumnNames()
	if len(schema) != len(want) {
		t.Fatalf("schema has %d fields, want %d", len(schema), len(want))
	}
	for i, f := range schema {
		if f.Name != want[i] {
			t.Errorf("schema[%d] = %q, want %q", i, f.Name, want[i])
		}
	}
	if !schema[0].Required {
		t.Error("transaction_id should be required")
	}
	for _, f := range schema {
		if f.Name == "wallet_type" && f.Required {
			t.Error("wallet_type should be nullable")
		}
	}
}

func TestSchemaColumns(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "merchant_city", Type: bigquery.StringFieldType},
		{Name: "n", Type: bigquery.IntegerFieldType},
	}
	got := schemaColumns(schema)
	if len(got) != 2 || got[0] != "merchant_city" || got[1] != "n" {
		t.Errorf("schemaColumns = %v", got)
	}
}
