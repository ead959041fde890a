package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ashirbekov/txinsights/internal/domain"
)

// timestampLayouts are tried in order when a timestamp arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceStats counts coercion outcomes for one row or one batch.
type CoerceStats struct {
	NullsCoerced int64 // values present in the source but unparsable, stored as null
	RowsSkipped  int64 // rows dropped because a required column was missing or unparsable
}

func (s *CoerceStats) add(o CoerceStats) {
	s.NullsCoerced += o.NullsCoerced
	s.RowsSkipped += o.RowsSkipped
}

// RowCoercer maps raw source rows onto Transaction values following the
// declared sink column kinds. Unparsable optional values become null;
// unparsable required values invalidate the whole row.
type RowCoercer struct {
	cols []domain.Column
}

// NewRowCoercer builds a coercer over the sink schema.
func NewRowCoercer() *RowCoercer {
	return &RowCoercer{cols: domain.Columns()}
}

// CoerceRow builds one Transaction from a raw source row.
func (c *RowCoercer) CoerceRow(row map[string]any) (domain.Transaction, CoerceStats, error) {
	var stats CoerceStats
	vals := make(map[string]any, len(c.cols))

	for _, col := range c.cols {
		raw := row[col.Source]
		v, ok := coerceValue(col.Kind, raw)
		if !ok {
			if col.Required {
				stats.RowsSkipped = 1
				return domain.Transaction{}, stats, fmt.Errorf("required column %q: %w", col.Name, errUnparsable)
			}
			if raw != nil {
				stats.NullsCoerced++
			}
			continue
		}
		vals[col.Name] = v
	}

	tx := domain.Transaction{
		TransactionID:        vals["transaction_id"].(string),
		TransactionTimestamp: vals["transaction_timestamp"].(time.Time),
		CardID:               vals["card_id"].(int64),
		ExpiryDate:           textPtr(vals["expiry_date"]),
		IssuerBankName:       textPtr(vals["issuer_bank_name"]),
		MerchantID:           intPtr(vals["merchant_id"]),
		MerchantMCC:          intPtr(vals["merchant_mcc"]),
		MCCCategory:          textPtr(vals["mcc_category"]),
		MerchantCity:         textPtr(vals["merchant_city"]),
		TransactionType:      textPtr(vals["transaction_type"]),
		TransactionAmountKZT: decimalPtr(vals["transaction_amount_kzt"]),
		OriginalAmount:       decimalPtr(vals["original_amount"]),
		TransactionCurrency:  textPtr(vals["transaction_currency"]),
		AcquirerCountryISO:   textPtr(vals["acquirer_country_iso"]),
		POSEntryMode:         textPtr(vals["pos_entry_mode"]),
		WalletType:           textPtr(vals["wallet_type"]),
		IndexLevel0:          intPtr(vals["index_level_0"]),
	}
	return tx, stats, nil
}

// CoerceBatch coerces every row of a batch, dropping rows whose required
// columns cannot be coerced.
func (c *RowCoercer) CoerceBatch(b *Batch) ([]domain.Transaction, CoerceStats) {
	var stats CoerceStats
	txs := make([]domain.Transaction, 0, len(b.Rows))
	for _, row := range b.Rows {
		tx, rowStats, err := c.CoerceRow(row)
		stats.add(rowStats)
		if err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, stats
}

// coerceValue dispatches to the coercion function for the column kind.
func coerceValue(kind domain.ColumnKind, raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	switch kind {
	case domain.KindText:
		return coerceText(raw)
	case domain.KindInteger:
		return coerceInteger(raw)
	case domain.KindDecimal:
		return coerceDecimal(raw)
	case domain.KindTimestamp:
		return coerceTimestamp(raw)
	default:
		return nil, false
	}
}

func coerceText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

func coerceInteger(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		// pandas exports nullable integer columns as doubles
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Trunc(v) != v {
			return 0, false
		}
		return int64(v), true
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && math.Trunc(f) == f {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceDecimal(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	case int64:
		return epochToTime(v), true
	default:
		return time.Time{}, false
	}
}

// epochToTime guesses the epoch unit from magnitude. Second-precision values
// stay representable until the year 33658 under this scheme.
func epochToTime(n int64) time.Time {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e18:
		return time.Unix(0, n).UTC()
	case abs >= 1e15:
		return time.UnixMicro(n).UTC()
	case abs >= 1e12:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

func textPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func intPtr(v any) *int64 {
	if v == nil {
		return nil
	}
	n := v.(int64)
	return &n
}

func decimalPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	f := v.(float64)
	return &f
}
