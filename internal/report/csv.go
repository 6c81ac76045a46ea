// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// ObjectWriter stores report bytes at a destination URI (s3:// or file://).
type ObjectWriter interface {
	WriteObject(ctx context.Context, uri string, data []byte) error
}

// RenderCSV renders a table as CSV with a header row.
func RenderCSV(table *Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Columns); err != nil {
		return nil, err
	}
	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV renders a table and stores it at the destination URI.
func WriteCSV(ctx context.Context, table *Table, uri string, store ObjectWriter) error {
	data, err := RenderCSV(table)
	if err != nil {
		return fmt.Errorf("failed to render report %s: %w", table.Name, err)
	}
	if err := store.WriteObject(ctx, uri, data); err != nil {
		return fmt.Errorf("failed to write report %s to %s: %w", table.Name, uri, err)
	}
	return nil
}
