// Package ingest reads columnar transaction files and loads them into a
// relational sink in fixed-size batches, keeping resident memory proportional
// to one batch rather than to file size.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

// DefaultBatchSize is the number of rows per batch when none is configured.
const DefaultBatchSize = 1000

// Batch is one fixed-size, ordered slice of raw rows read from a source
// file. Keys are source column names; values are decoded Go values or nil.
type Batch struct {
	Index       int   // zero-based batch number
	Offset      int64 // absolute row offset of the first row
	Rows        []map[string]any
	SourceBytes int64 // uncompressed source bytes this batch accounts for
}

type decodeFunc func(parquet.Value) any

// Reader produces a lazy, finite sequence of row batches from a parquet
// file. Only the file footer is read at open time; row data is pulled row
// group by row group, and a single large row group is sliced into batches
// rather than loaded whole. The sequence is restartable by opening a fresh
// Reader on the same path.
//
// The Reader holds an open file handle until Close is called or the sequence
// is exhausted and Close is called by the consumer.
type Reader struct {
	path      string
	file      *os.File
	batchSize int

	names    []string
	decoders []decodeFunc

	groups     []parquet.RowGroup
	groupRows  []int64
	groupBytes []int64
	totalRows  int64
	totalBytes int64

	group          int
	rows           parquet.Rows
	groupRead      int64
	groupBytesDone int64
	buf            []parquet.Row

	batchIndex int
	offset     int64
	closed     bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithBatchSize sets the number of rows per batch. Values below one are
// ignored.
func WithBatchSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewReader opens the parquet file at path and prepares batch iteration.
// It returns a *SourceUnreadableError if the file cannot be opened or its
// metadata cannot be parsed.
func NewReader(path string, opts ...ReaderOption) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}

	pq, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, &SourceUnreadableError{Path: path, Err: err}
	}

	r := &Reader{
		path:      path,
		file:      file,
		batchSize: DefaultBatchSize,
		groups:    pq.RowGroups(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.names, r.decoders = leafDecoders(pq.Schema())
	if len(r.names) == 0 {
		_ = file.Close()
		return nil, &SourceUnreadableError{Path: path, Err: errors.New("schema has no leaf columns")}
	}

	meta := pq.Metadata()
	r.groupRows = make([]int64, len(meta.RowGroups))
	r.groupBytes = make([]int64, len(meta.RowGroups))
	for i, rg := range meta.RowGroups {
		r.groupRows[i] = rg.NumRows
		r.groupBytes[i] = rg.TotalByteSize
		r.totalRows += rg.NumRows
		r.totalBytes += rg.TotalByteSize
	}
	r.buf = make([]parquet.Row, r.batchSize)
	return r, nil
}

// Columns returns the source column names in schema order. Nested fields use
// dot notation.
func (r *Reader) Columns() []string {
	return r.names
}

// TotalRows reports the row count recorded in the file metadata.
func (r *Reader) TotalRows() int64 {
	return r.totalRows
}

// TotalBytes reports the uncompressed data size across all row groups.
func (r *Reader) TotalBytes() int64 {
	return r.totalBytes
}

// BatchSize reports the configured rows-per-batch.
func (r *Reader) BatchSize() int {
	return r.batchSize
}

// Next returns the next batch, or io.EOF when the file is exhausted. The
// returned batch is owned by the caller; the Reader retains no reference to
// it.
func (r *Reader) Next() (*Batch, error) {
	if r.closed {
		return nil, errors.New("reader is closed")
	}
	for {
		if r.rows == nil {
			if r.group >= len(r.groups) {
				return nil, io.EOF
			}
			r.rows = r.groups[r.group].Rows()
			r.groupRead = 0
			r.groupBytesDone = 0
		}

		n, err := r.rows.ReadRows(r.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read rows from group %d of %s: %w", r.group, r.path, err)
		}
		if n == 0 {
			r.finishGroup()
			continue
		}

		batch := r.buildBatch(r.buf[:n])
		if errors.Is(err, io.EOF) {
			r.finishGroup()
		}
		return batch, nil
	}
}

// Close releases the file handle. It is safe to call more than once and
// after early termination of the batch sequence.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.rows != nil {
		_ = r.rows.Close()
		r.rows = nil
	}
	return r.file.Close()
}

func (r *Reader) finishGroup() {
	if r.rows != nil {
		_ = r.rows.Close()
		r.rows = nil
	}
	r.group++
}

func (r *Reader) buildBatch(rows []parquet.Row) *Batch {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(r.names))
		for _, v := range row {
			ci := v.Column()
			if ci < 0 || ci >= len(r.names) {
				continue
			}
			if v.IsNull() {
				m[r.names[ci]] = nil
				continue
			}
			m[r.names[ci]] = r.decoders[ci](v)
		}
		out[i] = m
	}

	r.groupRead += int64(len(rows))
	b := &Batch{
		Index:       r.batchIndex,
		Offset:      r.offset,
		Rows:        out,
		SourceBytes: r.attributeBytes(),
	}
	r.batchIndex++
	r.offset += int64(len(rows))
	return b
}

// attributeBytes apportions the current row group's byte size across its
// batches in proportion to rows consumed, truing up on the final batch so
// per-batch sizes add up to the group total.
func (r *Reader) attributeBytes() int64 {
	total := r.groupBytes[r.group]
	groupRows := r.groupRows[r.group]
	if groupRows <= 0 {
		return 0
	}
	cum := int64(float64(total) * float64(r.groupRead) / float64(groupRows))
	if r.groupRead >= groupRows || cum > total {
		cum = total
	}
	if cum < r.groupBytesDone {
		cum = r.groupBytesDone
	}
	share := cum - r.groupBytesDone
	r.groupBytesDone = cum
	return share
}

// leafDecoders walks the schema and returns, in leaf column order, each
// leaf's dotted name and a decoder from parquet values to Go values.
func leafDecoders(schema *parquet.Schema) ([]string, []decodeFunc) {
	var names []string
	var decoders []decodeFunc

	var walk func(f parquet.Field, prefix string)
	walk = func(f parquet.Field, prefix string) {
		name := f.Name()
		if prefix != "" {
			name = prefix + "." + name
		}
		children := f.Fields()
		if len(children) > 0 {
			for _, c := range children {
				walk(c, name)
			}
			return
		}
		names = append(names, name)
		decoders = append(decoders, decoderFor(f))
	}
	for _, f := range schema.Fields() {
		walk(f, "")
	}
	return names, decoders
}

// decoderFor picks a decoder by logical type first, falling back to the
// physical type. Timestamps and dates decode to time.Time in UTC.
func decoderFor(field parquet.Field) decodeFunc {
	typ := field.Type()
	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil:
			return func(v parquet.Value) any { return v.String() }
		case lt.Timestamp != nil:
			unit := lt.Timestamp.Unit
			switch {
			case unit.Millis != nil:
				return func(v parquet.Value) any { return time.UnixMilli(v.Int64()).UTC() }
			case unit.Micros != nil:
				return func(v parquet.Value) any { return time.UnixMicro(v.Int64()).UTC() }
			default:
				return func(v parquet.Value) any { return time.Unix(0, v.Int64()).UTC() }
			}
		case lt.Date != nil:
			return func(v parquet.Value) any { return time.Unix(int64(v.Int32())*86400, 0).UTC() }
		case lt.Decimal != nil:
			scale := int(lt.Decimal.Scale)
			switch typ.Kind() {
			case parquet.Int32:
				return func(v parquet.Value) any { return float64(v.Int32()) / math.Pow10(scale) }
			case parquet.Int64:
				return func(v parquet.Value) any { return float64(v.Int64()) / math.Pow10(scale) }
			}
		}
	}

	switch typ.Kind() {
	case parquet.Boolean:
		return func(v parquet.Value) any { return v.Boolean() }
	case parquet.Int32:
		return func(v parquet.Value) any { return int64(v.Int32()) }
	case parquet.Int64:
		return func(v parquet.Value) any { return v.Int64() }
	case parquet.Float:
		return func(v parquet.Value) any { return float64(v.Float()) }
	case parquet.Double:
		return func(v parquet.Value) any { return v.Double() }
	default:
		return func(v parquet.Value) any { return v.String() }
	}
}
