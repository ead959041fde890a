// Command inspect-parquet prints the metadata and a row sample of a
// transaction parquet file, without touching any sink. Handy for checking
// what a file contains before enqueueing a load.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ashirbekov/txinsights/internal/ingest"
	"github.com/ashirbekov/txinsights/internal/source"
)

func main() {
	file := flag.String("file", "", "parquet file to inspect (local path or gs:// URI)")
	rows := flag.Int("rows", 10, "number of sample rows to print")
	flag.Parse()

	if *file == "" {
		log.Fatal("error: --file is required")
	}

	if err := run(*file, *rows); err != nil {
		log.Fatalf("error: %v", err)
	}
}

func run(file string, sampleRows int) error {
	ctx := context.Background()

	src, err := source.Resolve(ctx, file)
	if err != nil {
		return err
	}
	defer src.Close()

	r, err := ingest.NewReader(src.Path, ingest.WithBatchSize(sampleRows))
	if err != nil {
		return err
	}
	defer r.Close()

	cols := r.Columns()
	fmt.Printf("File:    %s\n", file)
	fmt.Printf("Rows:    %d\n", r.TotalRows())
	fmt.Printf("Bytes:   %d (uncompressed)\n", r.TotalBytes())
	fmt.Printf("Columns: %d\n", len(cols))
	for _, name := range cols {
		fmt.Printf("  %s\n", name)
	}

	batch, err := r.Next()
	if errors.Is(err, io.EOF) {
		fmt.Println("\n(no rows)")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nFirst %d rows:\n", len(batch.Rows))
	printSample(cols, batch.Rows)
	return nil
}

func printSample(cols []string, rows []map[string]any) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rows {
		out := make(table.Row, len(cols))
		for i, col := range cols {
			v, ok := row[col]
			if !ok || v == nil {
				out[i] = "NULL"
				continue
			}
			out[i] = fmt.Sprintf("%v", v)
		}
		t.AppendRow(out)
	}
	t.Render()
}
