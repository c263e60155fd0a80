package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/facturio/invoice-pipeline/internal/common"
	"github.com/facturio/invoice-pipeline/internal/entity"
)

// InvoiceRepository persists extracted invoices. The pipeline itself never
// touches storage; callers hand it a finished JobResult.
type InvoiceRepository interface {
	SaveJobResult(ctx context.Context, result *entity.JobResult) error
	CountInvoices(ctx context.Context) (int64, error)
}

type pgInvoiceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInvoiceRepository(pool *pgxpool.Pool, logger *slog.Logger) InvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgInvoiceRepository{pool: pool, logger: logger}
}

// SaveJobResult stores the job row, every extracted invoice and its line
// items in one transaction. Records with advisory validation failures are
// stored anyway; the pipeline never discards model output.
func (r *pgInvoiceRepository) SaveJobResult(ctx context.Context, result *entity.JobResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			r.logger.Warn("rollback failed", "error", rbErr)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO extract_jobs (id, total_processed, success_count, error_count, finished_at)
		VALUES ($1, $2, $3, $4, $5)`,
		result.JobID, result.TotalProcessed, result.SuccessCount, result.ErrorCount, time.Now().UTC(),
	)
	if err != nil {
		return common.WrapError(err, "insert job")
	}

	for i := range result.Results {
		rec := &result.Results[i]
		if vErr := rec.Validate(); vErr != nil {
			r.logger.Warn("persisting invoice with invalid identifier fields",
				"job_id", result.JobID, "sequence_id", rec.SequenceID, "error", vErr)
		}
		var invoiceID uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO invoices (
				id, job_id, sequence_id, source_file,
				invoice_number, invoice_date, supplier_name, supplier_ruc,
				customer_name, customer_ruc, subtotal, tax, total,
				currency, confidence_score
			) VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')::date,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			RETURNING id`,
			uuid.New(), result.JobID, rec.SequenceID, rec.SourceFile,
			rec.InvoiceNumber, rec.InvoiceDate, rec.SupplierName, rec.SupplierRUC,
			rec.CustomerName, rec.CustomerRUC,
			decimalArg(rec.Subtotal), decimalArg(rec.Tax), decimalArg(rec.Total),
			rec.Currency, rec.ConfidenceScore,
		).Scan(&invoiceID)
		if err != nil {
			return common.WrapError(err, "insert invoice")
		}

		for pos, it := range rec.Items {
			_, err = tx.Exec(ctx, `
				INSERT INTO invoice_items (
					invoice_id, position, description, quantity, unit, unit_price, total_price
				) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				invoiceID, pos+1, it.Description,
				decimalArg(it.Quantity), it.Unit,
				decimalArg(it.UnitPrice), decimalArg(it.TotalPrice),
			)
			if err != nil {
				return common.WrapError(err, "insert invoice item")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit tx")
	}
	r.logger.Info("job result persisted",
		"job_id", result.JobID, "invoices", len(result.Results))
	return nil
}

func (r *pgInvoiceRepository) CountInvoices(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invoices`).Scan(&n); err != nil {
		return 0, common.WrapError(err, "count invoices")
	}
	return n, nil
}

// decimalArg passes exact decimal strings to the driver; numeric columns
// keep them lossless. Nil stays NULL.
func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
