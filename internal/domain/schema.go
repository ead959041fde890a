package domain

// ColumnKind is the sink-side type a source value is coerced into.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindDecimal
	KindTimestamp
)

func (k ColumnKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column describes one sink column: its name, the source-file column it is
// read from, its coercion target kind, and whether it holds free-form text
// that equality predicates should match case-insensitively.
type Column struct {
	Name     string
	Source   string
	Kind     ColumnKind
	Required bool
	FreeText bool
}

// Columns returns the sink schema in storage order. Callers must not rely on
// mutating the returned slice.
func Columns() []Column {
	return []Column{
		{Name: "transaction_id", Source: "transaction_id", Kind: KindText, Required: true},
		{Name: "transaction_timestamp", Source: "transaction_timestamp", Kind: KindTimestamp, Required: true},
		{Name: "card_id", Source: "card_id", Kind: KindInteger, Required: true},
		{Name: "expiry_date", Source: "expiry_date", Kind: KindText},
		{Name: "issuer_bank_name", Source: "issuer_bank_name", Kind: KindText, FreeText: true},
		{Name: "merchant_id", Source: "merchant_id", Kind: KindInteger},
		{Name: "merchant_mcc", Source: "merchant_mcc", Kind: KindInteger},
		{Name: "mcc_category", Source: "mcc_category", Kind: KindText, FreeText: true},
		{Name: "merchant_city", Source: "merchant_city", Kind: KindText, FreeText: true},
		{Name: "transaction_type", Source: "transaction_type", Kind: KindText, FreeText: true},
		{Name: "transaction_amount_kzt", Source: "transaction_amount_kzt", Kind: KindDecimal},
		{Name: "original_amount", Source: "original_amount", Kind: KindDecimal},
		{Name: "transaction_currency", Source: "transaction_currency", Kind: KindText},
		{Name: "acquirer_country_iso", Source: "acquirer_country_iso", Kind: KindText},
		{Name: "pos_entry_mode", Source: "pos_entry_mode", Kind: KindText, FreeText: true},
		{Name: "wallet_type", Source: "wallet_type", Kind: KindText, FreeText: true},
		{Name: "index_level_0", Source: "__index_level_0__", Kind: KindInteger},
	}
}

// ColumnNames returns the sink column names in storage order.
func ColumnNames() []string {
	cols := Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// FreeTextColumns returns the columns whose text predicates are rewritten to
// match case-insensitively.
func FreeTextColumns() []string {
	var names []string
	for _, c := range Columns() {
		if c.FreeText {
			names = append(names, c.Name)
		}
	}
	return names
}
