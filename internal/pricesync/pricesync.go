// Package pricesync implements the fast price lane: it compares ERP list
// prices and branch costs against Odoo's product.template records and writes
// only the fields that drifted. The full catalog reconciliation lives in
// odoosync; this lane exists so price corrections land within the hour
// without paying for a complete sync.
package pricesync

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/odoo"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

// PriceEpsilon is the minimum absolute difference before a price or cost
// field is rewritten. Sub-cent noise from float round-trips stays untouched.
const PriceEpsilon = 0.01

const productPageSize = 500

// PriceRow is one sellable article's pricing as the ERP reports it.
type PriceRow struct {
	SKU   string
	Price float64
	Cost  float64
}

// PriceStore fetches the ERP pricing snapshot.
type PriceStore interface {
	FetchPrices(ctx context.Context) ([]PriceRow, error)
}

// Update carries the pending write for a single template.
type Update struct {
	TemplateID int64
	SKU        string
	Values     map[string]any
}

// Options tune the apply lane.
type Options struct {
	DryRun           bool
	WriteConcurrency int
	WriteRetries     int
	RetryDelay       time.Duration
}

// Service runs the price lane end to end.
type Service struct {
	rpc    odoo.Caller
	erp    PriceStore
	logger *slog.Logger
	opts   Options
}

// NewService wires a price lane service.
func NewService(rpc odoo.Caller, erp PriceStore, logger *slog.Logger, opts Options) *Service {
	if opts.WriteConcurrency <= 0 {
		opts.WriteConcurrency = 4
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Service{rpc: rpc, erp: erp, logger: logger, opts: opts}
}

// Run executes one price lane pass and reports its summary.
func (s *Service) Run(ctx context.Context) runlog.Summary {
	rec := runlog.NewRecorder("price-sync", s.opts.DryRun, s.logger)

	var rows []PriceRow
	if err := rec.Phase(ctx, "extract", func(ctx context.Context) error {
		var err error
		rows, err = s.erp.FetchPrices(ctx)
		if err == nil {
			s.logger.Info("price snapshot extracted", slog.Int("articles", len(rows)))
		}
		return err
	}); err != nil {
		return rec.Finish()
	}

	var remote []odoo.Record
	if err := rec.Phase(ctx, "fetch", func(ctx context.Context) error {
		var err error
		remote, err = odoo.SearchReadAll(ctx, s.rpc, "product.template",
			[]any{[]any{"default_code", "!=", false}},
			[]string{"id", "default_code", "list_price", "standard_price"},
			productPageSize, nil)
		return err
	}); err != nil {
		return rec.Finish()
	}

	updates := ComputeUpdates(rows, remote)
	s.logger.Info("price diff computed",
		slog.Int("remote", len(remote)),
		slog.Int("updates", len(updates)))

	_ = rec.Phase(ctx, "apply", func(ctx context.Context) error {
		s.apply(ctx, updates, rec.Counts())
		return nil
	})

	return rec.Finish()
}

// ComputeUpdates diffs the ERP snapshot against remote templates and returns
// the minimal write per drifted product. Articles without a matching remote
// template are ignored; the full sync creates those.
func ComputeUpdates(rows []PriceRow, remote []odoo.Record) []Update {
	byCode := make(map[string]odoo.Record, len(remote))
	for _, r := range remote {
		if code := r.Str("default_code"); code != "" {
			byCode[code] = r
		}
	}

	var updates []Update
	for _, row := range rows {
		r, ok := byCode[row.SKU]
		if !ok {
			continue
		}
		vals := map[string]any{}
		if math.Abs(r.Float("list_price")-row.Price) > PriceEpsilon {
			vals["list_price"] = row.Price
		}
		if row.Cost > 0 && math.Abs(r.Float("standard_price")-row.Cost) > PriceEpsilon {
			vals["standard_price"] = row.Cost
		}
		if len(vals) > 0 {
			updates = append(updates, Update{TemplateID: r.ID(), SKU: row.SKU, Values: vals})
		}
	}
	return updates
}

func (s *Service) apply(ctx context.Context, updates []Update, counts *runlog.Counts) {
	if s.opts.DryRun {
		for _, u := range updates {
			s.logger.Info("dry-run: would update price",
				slog.String("sku", u.SKU), slog.Any("values", u.Values))
		}
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.WriteConcurrency)
	for _, u := range updates {
		u := u
		g.Go(func() error {
			err := odoo.Retry(gctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
				return odoo.Write(gctx, s.rpc, "product.template", []int64{u.TemplateID}, u.Values)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				counts.Errors++
				s.logger.Error("price update failed",
					slog.String("sku", u.SKU), slog.Any("error", err))
				return nil
			}
			counts.Updated++
			return nil
		})
	}
	_ = g.Wait()
}
