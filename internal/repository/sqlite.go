package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extract_jobs (
	id              TEXT PRIMARY KEY,
	total_processed INTEGER NOT NULL,
	success_count   INTEGER NOT NULL,
	error_count     INTEGER NOT NULL,
	finished_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS invoices (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES extract_jobs(id),
	sequence_id      INTEGER NOT NULL,
	source_file      TEXT NOT NULL,
	invoice_number   TEXT,
	invoice_date     TEXT,
	supplier_name    TEXT,
	supplier_ruc     TEXT,
	customer_name    TEXT,
	customer_ruc     TEXT,
	subtotal         TEXT,
	tax              TEXT,
	total            TEXT,
	currency         TEXT NOT NULL,
	confidence_score REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS invoice_items (
	invoice_id  TEXT NOT NULL REFERENCES invoices(id),
	position    INTEGER NOT NULL,
	description TEXT,
	quantity    TEXT,
	unit        TEXT,
	unit_price  TEXT,
	total_price TEXT
);
`

// LocalStore is the embedded alternative to Postgres used by the batch CLI.
// Money columns hold exact decimal strings.
type LocalStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenLocal opens (and if needed initializes) a sqlite database at path.
// Use ":memory:" for a throwaway store.
func OpenLocal(path string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "init sqlite schema")
	}
	logger.Info("local store opened", "path", path)
	return &LocalStore{db: db, logger: logger}, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// SaveJobResult mirrors the Postgres repository for local runs.
func (s *LocalStore) SaveJobResult(ctx context.Context, result *entity.JobResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO extract_jobs (id, total_processed, success_count, error_count, finished_at)
		VALUES (?, ?, ?, ?, ?)`,
		result.JobID.String(), result.TotalProcessed, result.SuccessCount, result.ErrorCount,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return common.WrapError(err, "insert job")
	}

	for i := range result.Results {
		rec := &result.Results[i]
		invoiceID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (
				id, job_id, sequence_id, source_file,
				invoice_number, invoice_date, supplier_name, supplier_ruc,
				customer_name, customer_ruc, subtotal, tax, total,
				currency, confidence_score
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			invoiceID, result.JobID.String(), rec.SequenceID, rec.SourceFile,
			rec.InvoiceNumber, rec.InvoiceDate, rec.SupplierName, rec.SupplierRUC,
			rec.CustomerName, rec.CustomerRUC,
			decimalArg(rec.Subtotal), decimalArg(rec.Tax), decimalArg(rec.Total),
			rec.Currency, rec.ConfidenceScore,
		)
		if err != nil {
			return common.WrapError(err, "insert invoice")
		}
		for pos, it := range rec.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO invoice_items (
					invoice_id, position, description, quantity, unit, unit_price, total_price
				) VALUES (?,?,?,?,?,?,?)`,
				invoiceID, pos+1, it.Description,
				decimalArg(it.Quantity), it.Unit,
				decimalArg(it.UnitPrice), decimalArg(it.TotalPrice),
			)
			if err != nil {
				return common.WrapError(err, "insert invoice item")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit tx")
	}
	s.logger.Info("job result persisted locally",
		"job_id", result.JobID, "invoices", len(result.Results))
	return nil
}

// CountInvoices reports how many invoices the local store holds.
func (s *LocalStore) CountInvoices(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM invoices`).Scan(&n); err != nil {
		return 0, common.WrapError(err, "count invoices")
	}
	return n, nil
}
