package sink

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/ashirbekov/txinsights/internal/domain"
)

func init() {
	Register("bigquery", openBigQuery)
}

// transactionRow is the BigQuery shape of one transaction.
type transactionRow struct {
	TransactionID        string               `bigquery:"transaction_id"` // REQUIRED
	TransactionTimestamp time.Time            `bigquery:"transaction_timestamp"`
	CardID               int64                `bigquery:"card_id"`
	ExpiryDate           bigquery.NullString  `bigquery:"expiry_date"`
	IssuerBankName       bigquery.NullString  `bigquery:"issuer_bank_name"`
	MerchantID           bigquery.NullInt64   `bigquery:"merchant_id"`
	MerchantMCC          bigquery.NullInt64   `bigquery:"merchant_mcc"`
	MCCCategory          bigquery.NullString  `bigquery:"mcc_category"`
	MerchantCity         bigquery.NullString  `bigquery:"merchant_city"`
	TransactionType      bigquery.NullString  `bigquery:"transaction_type"`
	TransactionAmountKZT bigquery.NullFloat64 `bigquery:"transaction_amount_kzt"`
	OriginalAmount       bigquery.NullFloat64 `bigquery:"original_amount"`
	TransactionCurrency  bigquery.NullString  `bigquery:"transaction_currency"`
	AcquirerCountryISO   bigquery.NullString  `bigquery:"acquirer_country_iso"`
	POSEntryMode         bigquery.NullString  `bigquery:"pos_entry_mode"`
	WalletType           bigquery.NullString  `bigquery:"wallet_type"`
	IndexLevel0          bigquery.NullInt64   `bigquery:"index_level_0"`
}

func toTransactionRow(t *domain.Transaction) *transactionRow {
	return &transactionRow{
		TransactionID:        t.TransactionID,
		TransactionTimestamp: t.TransactionTimestamp,
		CardID:               t.CardID,
		ExpiryDate:           nullString(t.ExpiryDate),
		IssuerBankName:       nullString(t.IssuerBankName),
		MerchantID:           nullInt64(t.MerchantID),
		MerchantMCC:          nullInt64(t.MerchantMCC),
		MCCCategory:          nullString(t.MCCCategory),
		MerchantCity:         nullString(t.MerchantCity),
		TransactionType:      nullString(t.TransactionType),
		TransactionAmountKZT: nullFloat64(t.TransactionAmountKZT),
		OriginalAmount:       nullFloat64(t.OriginalAmount),
		TransactionCurrency:  nullString(t.TransactionCurrency),
		AcquirerCountryISO:   nullString(t.AcquirerCountryISO),
		POSEntryMode:         nullString(t.POSEntryMode),
		WalletType:           nullString(t.WalletType),
		IndexLevel0:          nullInt64(t.IndexLevel0),
	}
}

func nullString(p *string) bigquery.NullString {
	if p == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *p, Valid: true}
}

func nullInt64(p *int64) bigquery.NullInt64 {
	if p == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *p, Valid: true}
}

func nullFloat64(p *float64) bigquery.NullFloat64 {
	if p == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *p, Valid: true}
}

type bigquerySink struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

func openBigQuery(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Project == "" || cfg.Dataset == "" {
		return nil, fmt.Errorf("bigquery sink requires project and dataset")
	}
	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &bigquerySink{
		client:  client,
		project: cfg.Project,
		dataset: cfg.Dataset,
		table:   cfg.tableName(),
	}, nil
}

// InsertBatch streams the batch in one insert request. Streaming inserts do
// not run in a transaction; a failed request fails the whole batch here and
// the loader records it.
func (s *bigquerySink) InsertBatch(ctx context.Context, rows []domain.Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	bqRows := make([]*transactionRow, len(rows))
	for i := range rows {
		bqRows[i] = toTransactionRow(&rows[i])
	}

	table := s.client.DatasetInProject(s.project, s.dataset).Table(s.table)
	if err := table.Inserter().Put(ctx, bqRows); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (s *bigquerySink) Query(ctx context.Context, query string, limit int) (*QueryResult, error) {
	q := s.client.Query(query)
	q.DefaultProjectID = s.project
	q.DefaultDatasetID = s.dataset

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	res := &QueryResult{}
	for {
		var vals []bigquery.Value
		err := it.Next(&vals)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		if res.Columns == nil {
			res.Columns = schemaColumns(it.Schema)
		}
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		m := make(map[string]any, len(vals))
		for i, v := range vals {
			name := fmt.Sprintf("f%d", i)
			if i < len(res.Columns) {
				name = res.Columns[i]
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			m[name] = v
		}
		res.Rows = append(res.Rows, m)
	}
	if res.Columns == nil {
		res.Columns = schemaColumns(it.Schema)
	}
	return res, nil
}

func schemaColumns(schema bigquery.Schema) []string {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = f.Name
	}
	return cols
}

// EnsureSchema creates the table from the row struct when it does not exist.
func (s *bigquerySink) EnsureSchema(ctx context.Context) error {
	table := s.client.DatasetInProject(s.project, s.dataset).Table(s.table)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	}
	schema, err := bigquery.InferSchema(transactionRow{})
	if err != nil {
		return fmt.Errorf("infer schema: %w", err)
	}
	if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (s *bigquerySink) Close() error {
	return s.client.Close()
}
