// Package wixsync pushes stock levels from the Postgres price replica to the
// Wix storefront. The sync is incremental: a watermark in app settings marks
// the newest price_actualizado already pushed, and each run only considers
// rows stamped after it. Stock below the configured threshold publishes as
// zero so the storefront never sells the last units reserved for counters.
package wixsync

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/runlog"
	"github.com/proconsa/erp-bridge/internal/wix"
)

// WatermarkKey is the settings key holding the last processed timestamp.
const WatermarkKey = "wix.price_inventory_sync.last_processed_timestamp"

const defaultWatermark = "1970-01-01T00:00:00.000Z"

// defaultVariantID addresses the implicit variant of single-variant products.
const defaultVariantID = "00000000-0000-0000-0000-000000000000"

// StockSum is one SKU's stock aggregated across the selected branches.
type StockSum struct {
	SKU         string
	TotalStock  float64
	Precio      float64
	LastUpdated time.Time
}

// StockStore reads aggregated stock from the price replica.
type StockStore interface {
	FetchChangedStock(ctx context.Context, since, branchPrefix string, skus []string) ([]StockSum, error)
}

// Catalog is the Wix surface the sync needs. *wix.Client satisfies it.
type Catalog interface {
	QueryAllProducts(ctx context.Context) ([]wix.Product, error)
	UpdateInventory(ctx context.Context, update wix.InventoryUpdate) error
}

// Settings persists the watermark between runs.
type Settings interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Options tune one sync run.
type Options struct {
	BranchPrefix string
	MinStock     float64
	Concurrency  int
	DryRun       bool
}

// Service runs the replica-to-Wix stock sync.
type Service struct {
	catalog  Catalog
	stock    StockStore
	settings Settings
	logger   *slog.Logger
	opts     Options
}

// NewService wires a sync service.
func NewService(catalog Catalog, stock StockStore, settings Settings, logger *slog.Logger, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = "1"
	}
	return &Service{catalog: catalog, stock: stock, settings: settings, logger: logger, opts: opts}
}

// Run executes one incremental stock push.
func (s *Service) Run(ctx context.Context) runlog.Summary {
	rec := runlog.NewRecorder("wix-sync", s.opts.DryRun, s.logger)

	var bySKU map[string]wix.Product
	if err := rec.Phase(ctx, "catalog", func(ctx context.Context) error {
		products, err := s.catalog.QueryAllProducts(ctx)
		if err != nil {
			return err
		}
		bySKU = make(map[string]wix.Product, len(products))
		for _, p := range products {
			if p.SKU != "" {
				bySKU[p.SKU] = p
			}
		}
		s.logger.Info("wix catalog fetched",
			slog.Int("products", len(products)),
			slog.Int("with_sku", len(bySKU)))
		return nil
	}); err != nil {
		return rec.Finish()
	}
	if len(bySKU) == 0 {
		s.logger.Info("no wix products with sku, nothing to sync")
		return rec.Finish()
	}

	var changed []StockSum
	var watermark string
	if err := rec.Phase(ctx, "stock", func(ctx context.Context) error {
		var err error
		watermark, err = s.settings.Get(ctx, WatermarkKey, defaultWatermark)
		if err != nil {
			return err
		}
		skus := make([]string, 0, len(bySKU))
		for sku := range bySKU {
			skus = append(skus, sku)
		}
		changed, err = s.stock.FetchChangedStock(ctx, watermark, s.opts.BranchPrefix, skus)
		if err == nil {
			s.logger.Info("stock changes since watermark",
				slog.String("since", watermark),
				slog.Int("skus", len(changed)))
		}
		return err
	}); err != nil {
		return rec.Finish()
	}
	if len(changed) == 0 {
		return rec.Finish()
	}

	_ = rec.Phase(ctx, "apply", func(ctx context.Context) error {
		s.apply(ctx, changed, bySKU, rec.Counts())
		return nil
	})

	if !s.opts.DryRun {
		_ = rec.Phase(ctx, "watermark", func(ctx context.Context) error {
			// Rows arrive newest-first; the first one carries the new mark.
			next := changed[0].LastUpdated.UTC().Format("2006-01-02T15:04:05.000Z")
			if err := s.settings.Set(ctx, WatermarkKey, next); err != nil {
				return err
			}
			s.logger.Info("watermark advanced", slog.String("to", next))
			return nil
		})
	}

	return rec.Finish()
}

// EffectiveStock applies the publish threshold: anything below MinStock sells
// as zero, everything else rounds down to whole units.
func (s *Service) EffectiveStock(total float64) int {
	if total < s.opts.MinStock {
		return 0
	}
	return int(math.Floor(total))
}

func (s *Service) apply(ctx context.Context, changed []StockSum, bySKU map[string]wix.Product, counts *runlog.Counts) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	var blocked, skipped int
	for _, row := range changed {
		row := row
		qty := s.EffectiveStock(row.TotalStock)

		product, ok := bySKU[row.SKU]
		if !ok || product.InventoryItemID == "" {
			s.logger.Warn("sku has no wix inventory item, skipping", slog.String("sku", row.SKU))
			skipped++
			continue
		}
		if qty == 0 {
			blocked++
		}
		if s.opts.DryRun {
			s.logger.Info("dry-run: would update stock",
				slog.String("sku", row.SKU),
				slog.Float64("total", row.TotalStock),
				slog.Int("effective", qty))
			continue
		}

		g.Go(func() error {
			err := s.catalog.UpdateInventory(gctx, wix.InventoryUpdate{
				InventoryItemID: product.InventoryItemID,
				TrackQuantity:   true,
				Variants: []wix.Variant{
					{VariantID: defaultVariantID, Quantity: qty, InStock: qty > 0},
				},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				counts.Errors++
				s.logger.Error("inventory update failed",
					slog.String("sku", row.SKU), slog.Any("error", err))
				return nil
			}
			counts.StockApplied++
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("stock push done",
		slog.Int("updated", counts.StockApplied),
		slog.Int("blocked_at_zero", blocked),
		slog.Int("skipped", skipped),
		slog.Int("failures", counts.Errors))
}
