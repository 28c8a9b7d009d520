// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ledger records run metadata — which query ran, when, and
// with what record/epoch counts — to a local SQLite database, brought
// forward with golang-migrate at Open time from migrations embedded in
// the binary via go:embed. Only metadata is persisted here, never
// operator state: a ledger row describes a run after the fact, it
// cannot be used to resume one.
package ledger

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/sqlite3
var migrationFiles embed.FS

// Ledger is a handle to the run-metadata database.
type Ledger struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// brings its schema up to the latest migration.
func Open(path string) (*Ledger, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 does not benefit from concurrent writers

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("ledger: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("ledger: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("ledger: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("ledger: migrate up: %w", err)
	}
	return nil
}

// Run is one row of run metadata.
type Run struct {
	ID          int64      `db:"id"`
	QueryName   string     `db:"query_name"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	RecordsIn   int64      `db:"records_in"`
	RecordsOut  int64      `db:"records_out"`
	Epochs      int64      `db:"epochs"`
	Error       *string    `db:"error"`
}

// StartRun inserts a new run row and returns its id.
func (l *Ledger) StartRun(queryName string, startedAt time.Time) (int64, error) {
	res, err := l.db.Exec(
		`INSERT INTO runs (query_name, started_at) VALUES (?, ?)`,
		queryName, startedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: start run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun records a run's final counts and completion time. runErr,
// if non-nil, is stored as the run's error message.
func (l *Ledger) FinishRun(id int64, finishedAt time.Time, recordsIn, recordsOut, epochs int64, runErr error) error {
	var errMsg any
	if runErr != nil {
		errMsg = runErr.Error()
	}
	_, err := l.db.Exec(
		`UPDATE runs SET finished_at = ?, records_in = ?, records_out = ?, epochs = ?, error = ? WHERE id = ?`,
		finishedAt.UTC(), recordsIn, recordsOut, epochs, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("ledger: finish run: %w", err)
	}
	return nil
}

// Recent returns the n most recently started runs, newest first.
func (l *Ledger) Recent(n int) ([]Run, error) {
	var runs []Run
	err := l.db.Select(&runs, `SELECT id, query_name, started_at, finished_at, records_in, records_out, epochs, error
		FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
