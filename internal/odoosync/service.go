// Package odoosync reconciles the ERP article catalog and per-branch stock
// into Odoo. Each run rebuilds a normalized snapshot from the ERP extract,
// diffs it against the remote catalog, and converges the remote side with
// batched, retried writes. Runs are idempotent: a second run over unchanged
// data issues no writes.
package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/odoo"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

// Options are the run-time knobs for one sync run.
type Options struct {
	DryRun           bool
	WriteConcurrency int
	WriteRetries     int
	RetryDelay       time.Duration
	ImageConcurrency int
	SyncImages       bool
}

// Service runs the full catalog/stock reconciliation pipeline.
type Service struct {
	rpc      odoo.Caller
	erp      ERPStore
	logger   *slog.Logger
	opts     Options
	recorder *runlog.Recorder
}

// NewService wires the pipeline. The recorder is per-run; callers construct
// a fresh Service per run rather than reusing one.
func NewService(rpc odoo.Caller, erpStore ERPStore, logger *slog.Logger, opts Options, recorder *runlog.Recorder) *Service {
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = 4
	}
	if opts.ImageConcurrency <= 0 {
		opts.ImageConcurrency = 2
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Service{rpc: rpc, erp: erpStore, logger: logger, opts: opts, recorder: recorder}
}

// Run executes the pipeline phase by phase. A failed phase is recorded and
// aborts only the work that depends on its output; completed writes are
// never rolled back. The returned summary always covers every attempted
// phase.
func (s *Service) Run(ctx context.Context) runlog.Summary {
	var snap *Snapshot
	err := s.recorder.Phase(ctx, "extract", func(ctx context.Context) error {
		var articles []ArticleRow
		var stock []StockRow
		var equivalents []EquivalentRow

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			articles, err = s.erp.FetchArticles(gctx)
			return err
		})
		g.Go(func() (err error) {
			stock, err = s.erp.FetchStock(gctx)
			return err
		})
		g.Go(func() (err error) {
			equivalents, err = s.erp.FetchEquivalents(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		snap = Normalize(articles, stock, equivalents)
		s.logger.Info("extract normalized",
			slog.Int("articles", len(snap.Articles)),
			slog.Int("categories", len(snap.Categories)),
			slog.Int("branches", len(snap.Branches)),
		)
		return nil
	})
	if err != nil {
		// Nothing downstream can run without the snapshot.
		return s.recorder.Finish()
	}

	var categIDs, posCategIDs map[CategoryKey]int64
	catErr := s.recorder.Phase(ctx, "categories", func(ctx context.Context) error {
		var err error
		categIDs, err = s.SyncCategories(ctx, "product.category", snap.Categories)
		return err
	})
	_ = s.recorder.Phase(ctx, "pos_categories", func(ctx context.Context) error {
		var err error
		posCategIDs, err = s.SyncCategories(ctx, "pos.category", snap.Categories)
		if err != nil {
			// POS taxonomy is an enrichment; products still sync without it.
			s.logger.Warn("pos category sync failed, continuing without", slog.Any("error", err))
			posCategIDs = nil
		}
		return err
	})

	var locByCode map[string]int64
	_ = s.recorder.Phase(ctx, "warehouses", func(ctx context.Context) error {
		var err error
		locByCode, err = s.SyncWarehouses(ctx, snap.Branches)
		return err
	})

	if catErr == nil {
		_ = s.recorder.Phase(ctx, "products", func(ctx context.Context) error {
			products, err := s.fetchProducts(ctx)
			if err != nil {
				return err
			}
			cs := ComputeDiff(DiffInput{
				Articles:    snap.Articles,
				Products:    products,
				CategIDs:    categIDs,
				POSCategIDs: posCategIDs,
			}, s.logger)
			s.logger.Info("catalog diff computed",
				slog.Int("create", len(cs.ToCreate)),
				slog.Int("update", len(cs.ToUpdate)),
				slog.Int("archive", len(cs.ToArchive)),
			)
			if cs.Empty() {
				return nil
			}
			s.applyCreates(ctx, cs.ToCreate, categIDs, posCategIDs)
			s.applyUpdates(ctx, cs.ToUpdate)
			s.applyArchives(ctx, cs.ToArchive)
			return nil
		})
	} else {
		s.logger.Warn("skipping product phase, category sync failed")
	}

	var variantByCode map[string]int64
	varErr := s.recorder.Phase(ctx, "variants", func(ctx context.Context) error {
		var err error
		variantByCode, err = s.fetchVariants(ctx)
		return err
	})

	if varErr == nil {
		_ = s.recorder.Phase(ctx, "packaging", func(ctx context.Context) error {
			return s.ReconcilePackagings(ctx, snap.Articles, variantByCode)
		})
		_ = s.recorder.Phase(ctx, "stock", func(ctx context.Context) error {
			return s.ReconcileStock(ctx, snap.Articles, variantByCode, locByCode)
		})
	} else {
		s.logger.Warn("skipping packaging and stock phases, variant fetch failed")
	}

	if s.opts.SyncImages {
		_ = s.recorder.Phase(ctx, "images", func(ctx context.Context) error {
			return s.SyncImages(ctx)
		})
	}

	summary := s.recorder.Finish()
	s.logger.Info("run finished",
		slog.String("run_id", summary.RunID),
		slog.Bool("failed", summary.Failed()),
		slog.Int("created", summary.Counts.Created),
		slog.Int("updated", summary.Counts.Updated),
		slog.Int("archived", summary.Counts.Archived),
		slog.Int("stock_applied", summary.Counts.StockApplied),
		slog.Int("errors", summary.Counts.Errors),
	)
	return summary
}

// fetchProducts reads the full remote catalog, archived products included.
// Archived records must be visible so reactivation and re-archive decisions
// see the true remote state.
func (s *Service) fetchProducts(ctx context.Context) ([]odoo.Record, error) {
	products, err := odoo.SearchReadAll(ctx, s.rpc, "product.template",
		[]any{[]any{"default_code", "!=", false}},
		[]string{"id", "name", "default_code", "list_price", "standard_price", "categ_id", "barcode", "active", "pos_categ_ids", "available_in_pos"},
		productPageSize,
		map[string]any{"active_test": false},
	)
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch products: %w", err)
	}
	return products, nil
}
