// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/lib/pq"
)

// Publisher loads report tables into Postgres. Each report fully replaces
// its destination table, except the instance summary which is a rolling
// window: only rows inside the new window are replaced, so history older
// than the usage window survives.
type Publisher struct {
	log logr.Logger
	db  *sql.DB
}

// NewPublisher wraps an open database handle.
func NewPublisher(log logr.Logger, db *sql.DB) *Publisher {
	return &Publisher{log: log, db: db}
}

// Open connects to the report database. host is the address actually
// dialed, which may differ from the logical instance name when connecting
// through a proxy.
func Open(host string, port int, database, user, password string) (*sql.DB, error) {
	conn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=require",
		host, port, database, user, password)
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	return db, nil
}

// Publish replaces the contents of tableName with the report rows. The
// delete and bulk load share one transaction: readers never observe an
// empty or half-loaded table.
func (p *Publisher) Publish(ctx context.Context, table *Table, tableName string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", tableName, err)
	}
	defer tx.Rollback()

	if err := p.clear(ctx, tx, table, tableName); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(tableName, table.Columns...))
	if err != nil {
		return fmt.Errorf("failed to prepare bulk load for %s: %w", tableName, err)
	}
	for _, row := range table.Rows {
		values := make([]interface{}, len(row))
		for idx, cell := range row {
			values[idx] = cell
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to load row into %s: %w", tableName, err)
		}
	}
	// The final empty Exec flushes the COPY stream.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush bulk load for %s: %w", tableName, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to finish bulk load for %s: %w", tableName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", tableName, err)
	}
	p.log.Info("published report", "report", table.Name, "table", tableName, "rows", len(table.Rows))
	return nil
}

// clear removes the rows the new report replaces.
func (p *Publisher) clear(ctx context.Context, tx *sql.Tx, table *Table, tableName string) error {
	if table.Name == AccountInstanceSummary {
		start, ok := earliestTimestamp(table)
		if !ok {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE usagestartdate >= $1", pq.QuoteIdentifier(tableName)), start)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", tableName, err)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s", pq.QuoteIdentifier(tableName))); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", tableName, err)
	}
	return nil
}

// earliestTimestamp finds the smallest usagestartdate in the report.
func earliestTimestamp(table *Table) (string, bool) {
	column := -1
	for idx, name := range table.Columns {
		if name == "usagestartdate" {
			column = idx
			break
		}
	}
	if column < 0 {
		return "", false
	}
	earliest := ""
	for _, row := range table.Rows {
		if earliest == "" || row[column] < earliest {
			earliest = row[column]
		}
	}
	return earliest, earliest != ""
}
