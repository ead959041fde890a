package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ashirbekov/txinsights/internal/domain"
	"github.com/ashirbekov/txinsights/internal/sink"
)

// renderResult prints a query result as an aligned table, columns in source
// order.
func renderResult(w io.Writer, result *sink.QueryResult) {
	if result == nil || len(result.Rows) == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range result.Rows {
		out := make(table.Row, len(result.Columns))
		for i, col := range result.Columns {
			out[i] = formatValue(row[col])
		}
		t.AppendRow(out)
	}

	t.Render()
	suffix := ""
	if result.Truncated {
		suffix = ", more available"
	}
	fmt.Fprintf(w, "(%d rows%s)\n", len(result.Rows), suffix)
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	// Convert []byte to string for readability
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// renderSchema prints the transaction table layout.
func renderSchema(w io.Writer) {
	fmt.Fprintf(w, "Table: %s\n", domain.TableName)
	fmt.Fprintln(w, strings.Repeat("-", 60))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Type", "Required", "Source column"})

	for _, col := range domain.Columns() {
		required := ""
		if col.Required {
			required = "yes"
		}
		t.AppendRow(table.Row{col.Name, col.Kind.String(), required, col.Source})
	}
	t.Render()
}
