package pgsync

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/proconsa/erp-bridge/internal/notify"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

// DB is the slice of pgx the ETL needs. *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Mailer delivers the change report. *notify.Mailer satisfies it.
type Mailer interface {
	Send(email notify.Email) error
}

// Options tune one ETL run.
type Options struct {
	DryRun     bool
	Recipients []string
}

// Service runs the ERP to Postgres replication.
type Service struct {
	erp    ERPStore
	db     DB
	mailer Mailer
	logger *slog.Logger
	opts   Options
}

// NewService wires the ETL.
func NewService(erp ERPStore, db DB, mailer Mailer, logger *slog.Logger, opts Options) *Service {
	return &Service{erp: erp, db: db, mailer: mailer, logger: logger, opts: opts}
}

// Run executes one replication cycle: extract, bulk-load into staging, swap,
// then the non-fatal tail (barcode table, watermark, change analysis, email).
func (s *Service) Run(ctx context.Context) runlog.Summary {
	rec := runlog.NewRecorder("erp-pg-sync", s.opts.DryRun, s.logger)

	var rows []PriceRow
	if err := rec.Phase(ctx, "extract", func(ctx context.Context) error {
		var err error
		rows, err = s.erp.FetchPriceRows(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return errors.New("erp returned no price rows")
		}
		s.logger.Info("price rows extracted", slog.Int("rows", len(rows)))
		return nil
	}); err != nil {
		s.sendErrorReport(etlErrorTitle, err)
		return rec.Finish()
	}

	if s.opts.DryRun {
		s.logger.Info("dry-run: skipping load and swap", slog.Int("rows", len(rows)))
		return rec.Finish()
	}

	if err := rec.Phase(ctx, "load", func(ctx context.Context) error {
		return s.load(ctx, rows, rec.Counts())
	}); err != nil {
		s.sendErrorReport(etlErrorTitle, err)
		return rec.Finish()
	}

	if err := rec.Phase(ctx, "swap", func(ctx context.Context) error {
		return s.swap(ctx)
	}); err != nil {
		s.sendErrorReport(etlErrorTitle, err)
		return rec.Finish()
	}

	// The replica is live from here on; the remaining phases improve it but
	// must not undo a successful swap.
	_ = rec.Phase(ctx, "codes", func(ctx context.Context) error {
		return s.syncCodes(ctx)
	})
	_ = rec.Phase(ctx, "sync_date", func(ctx context.Context) error {
		return s.touchSyncDate(ctx)
	})

	var analysis *Analysis
	if err := rec.Phase(ctx, "analysis", func(ctx context.Context) error {
		var err error
		analysis, err = s.analyze(ctx, rec.Counts())
		return err
	}); err != nil {
		s.sendErrorReport(analysisErrorTitle, err)
	}
	if analysis != nil {
		_ = rec.Phase(ctx, "report", func(ctx context.Context) error {
			return s.sendReport(analysis)
		})
	}

	return rec.Finish()
}

// load rebuilds the staging table and bulk-copies the snapshot into it.
func (s *Service) load(ctx context.Context, rows []PriceRow, counts *runlog.Counts) error {
	if _, err := s.db.Exec(ctx, "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		return fmt.Errorf("drop staging: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", stagingTable, liveTable),
	); err != nil {
		return fmt.Errorf("create staging: %w", err)
	}

	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return rows[i].values(), nil
	})
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{stagingTable}, pgColumns, src)
	if err != nil {
		return fmt.Errorf("copy into staging: %w", err)
	}
	counts.Created += int(n)
	s.logger.Info("staging loaded", slog.Int64("rows", n))
	return nil
}

// swap promotes staging to live inside one transaction. The displaced live
// table becomes _old and feeds the change analysis until the next cycle.
func (s *Service) swap(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	steps := []string{
		"DROP TABLE IF EXISTS " + oldTable,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", liveTable, oldTable),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", stagingTable, liveTable),
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("swap step %q: %w", stmt, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	s.logger.Info("snapshot swapped live")
	return nil
}

// syncCodes refreshes the barcode lookup table. Truncate-and-reload is fine
// here: the table is tiny and nothing joins against it mid-load.
func (s *Service) syncCodes(ctx context.Context) error {
	codes, err := s.erp.FetchCodes(ctx)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, "TRUNCATE TABLE articulo_codigo"); err != nil {
		return fmt.Errorf("truncate articulo_codigo: %w", err)
	}
	src := pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
		return []any{codes[i].SKU, codes[i].Codigo}, nil
	})
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"articulo_codigo"}, []string{"sku", "codigo"}, src)
	if err != nil {
		return fmt.Errorf("copy articulo_codigo: %w", err)
	}
	s.logger.Info("barcode table refreshed", slog.Int64("rows", n))
	return nil
}

// touchSyncDate records when the replica last refreshed. Downstream consumers
// poll this instead of guessing from cron schedules.
func (s *Service) touchSyncDate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sync_date (id, ultima_actualizacion)
		VALUES (1, NOW())
		ON CONFLICT (id) DO UPDATE SET ultima_actualizacion = NOW()`)
	if err != nil {
		return fmt.Errorf("update sync_date: %w", err)
	}
	return nil
}

// sendReport mails the change summary. No movement means no email.
func (s *Service) sendReport(a *Analysis) error {
	if a.TotalReportable() == 0 {
		s.logger.Info("no price changes, skipping report email")
		return nil
	}
	if len(s.opts.Recipients) == 0 {
		s.logger.Warn("price changes detected but no report recipients configured",
			slog.Int("changes", a.TotalReportable()))
		return nil
	}

	email := notify.Email{
		To:      s.opts.Recipients,
		Subject: reportSubject(a),
		HTML:    renderHTMLReport(a),
		Text:    renderTextReport(a),
	}
	if a.Significant() {
		email.Attachments = append(email.Attachments, notify.Attachment{
			Filename: csvFilename(),
			MIME:     "text/csv; charset=utf-8",
			Data:     []byte(renderCSVReport(a)),
		})
	}
	return s.mailer.Send(email)
}

const (
	etlErrorTitle      = "Error en Sincronización ERP→PostgreSQL"
	analysisErrorTitle = "Error en Análisis de Precios"
)

// sendErrorReport notifies operators that a run broke. Delivery is
// best-effort: a mail failure never changes the run outcome.
func (s *Service) sendErrorReport(title string, cause error) {
	if len(s.opts.Recipients) == 0 {
		return
	}
	body := fmt.Sprintf("%s\n%s\n\nError: %v\n", title, strings.Repeat("=", utf8.RuneCountInString(title)), cause)
	err := s.mailer.Send(notify.Email{
		To:      s.opts.Recipients,
		Subject: "ERROR - " + title,
		HTML:    "<pre>" + html.EscapeString(body) + "</pre>",
		Text:    body,
	})
	if err != nil {
		s.logger.Error("send error report", slog.Any("error", err))
	}
}
