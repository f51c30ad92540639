package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/odoo"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

type quantKey struct {
	productID  int64
	locationID int64
}

// fetchVariants resolves SKU → product.product id. Only variants carrying
// the join-key code are eligible for stock and packaging sync.
func (s *Service) fetchVariants(ctx context.Context) (map[string]int64, error) {
	variants, err := odoo.SearchReadAll(ctx, s.rpc, "product.product",
		[]any{[]any{"default_code", "!=", false}},
		[]string{"id", "default_code"}, productPageSize, nil)
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch variants: %w", err)
	}
	byCode := make(map[string]int64, len(variants))
	for _, v := range variants {
		if code := strings.TrimSpace(v.Str("default_code")); code != "" {
			byCode[code] = v.ID()
		}
	}
	return byCode, nil
}

// ReconcileStock converges per-(product, location) quantities. Existing
// quants are adjusted, missing ones created, and zero targets with no
// existing record are skipped entirely so zero stock never mints records.
func (s *Service) ReconcileStock(ctx context.Context, articles map[string]*NormalizedArticle, variantByCode map[string]int64, locByCode map[string]int64) error {
	if len(locByCode) == 0 {
		s.logger.Warn("no warehouse locations mapped, skipping stock sync")
		return nil
	}
	if len(variantByCode) == 0 {
		s.logger.Warn("no product variants found, skipping stock sync")
		return nil
	}

	locationIDs := make([]int64, 0, len(locByCode))
	seen := make(map[int64]bool)
	for _, id := range locByCode {
		if !seen[id] {
			seen[id] = true
			locationIDs = append(locationIDs, id)
		}
	}

	// search + read instead of search_read: stock.quant search_read is known
	// to hang on large result sets on this Odoo version.
	quantIDs, err := odoo.SearchAllIDs(ctx, s.rpc, "stock.quant",
		[]any{[]any{"location_id", "in", locationIDs}}, quantSearchBatch)
	if err != nil {
		return fmt.Errorf("odoosync: search quants: %w", err)
	}
	quants, err := odoo.ReadRecords(ctx, s.rpc, "stock.quant", quantIDs,
		[]string{"id", "product_id", "location_id", "quantity"}, productPageSize)
	if err != nil {
		return fmt.Errorf("odoosync: read quants: %w", err)
	}

	index := make(map[quantKey]odoo.Record, len(quants))
	for _, q := range quants {
		key := quantKey{productID: q.Ref("product_id"), locationID: q.Ref("location_id")}
		if key.productID != 0 && key.locationID != 0 {
			index[key] = q
		}
	}

	var updates []StockUpdate
	for sku, article := range articles {
		productID, ok := variantByCode[sku]
		if !ok {
			continue
		}
		for branchCode, stock := range article.StockByBranch {
			locID, ok := locByCode[branchCode]
			if !ok {
				continue
			}
			key := quantKey{productID: productID, locationID: locID}
			if existing, ok := index[key]; ok {
				if math.Abs(existing.Float("quantity")-stock.Qty) > QtyEpsilon {
					updates = append(updates, StockUpdate{ProductID: productID, LocationID: locID, Qty: stock.Qty, QuantID: existing.ID()})
				}
				// Matched quants leave the index so they cannot later be
				// mistaken for stale records to zero out.
				delete(index, key)
			} else if stock.Qty > 0 {
				updates = append(updates, StockUpdate{ProductID: productID, LocationID: locID, Qty: stock.Qty})
			}
		}
	}

	var toCreate, toAdjust []StockUpdate
	for _, u := range updates {
		if u.QuantID == 0 {
			toCreate = append(toCreate, u)
		} else {
			toAdjust = append(toAdjust, u)
		}
	}
	s.logger.Info("stock changes computed",
		slog.Int("create", len(toCreate)),
		slog.Int("update", len(toAdjust)),
	)

	if s.opts.DryRun {
		s.logger.Info("dry run: skipping stock apply", slog.Int("changes", len(updates)))
		return nil
	}

	counts := s.recorder.Counts()
	s.createQuants(ctx, toCreate, counts)
	s.adjustQuants(ctx, toAdjust, counts)
	return nil
}

// createQuants batch-creates quants; each created batch is committed with
// one action_apply_inventory call. Writes do not take effect until applied.
func (s *Service) createQuants(ctx context.Context, toCreate []StockUpdate, counts *runlog.Counts) {
	for _, batch := range chunk(toCreate, quantCreateBatch) {
		vals := make([]map[string]any, len(batch))
		for i, u := range batch {
			vals[i] = map[string]any{
				"product_id":         u.ProductID,
				"location_id":        u.LocationID,
				"inventory_quantity": u.Qty,
			}
		}
		err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
			ids, err := odoo.Create(ctx, s.rpc, "stock.quant", vals)
			if err != nil {
				return err
			}
			if err := s.applyInventory(ctx, ids); err != nil {
				return err
			}
			counts.StockApplied += len(ids)
			return nil
		})
		if err != nil {
			s.logger.Error("quant create batch failed", slog.Int("size", len(batch)), slog.Any("error", err))
			counts.Errors += len(batch)
		}
	}
}

// adjustQuants writes each quant's target quantity through the bounded
// worker pool (every quant has its own value, so writes cannot be grouped),
// then commits each batch's successful writes with a single apply call.
func (s *Service) adjustQuants(ctx context.Context, toAdjust []StockUpdate, counts *runlog.Counts) {
	for _, batch := range chunk(toAdjust, quantUpdateBatch) {
		var mu sync.Mutex
		successIDs := make([]int64, 0, len(batch))

		pool, poolCtx := errgroup.WithContext(ctx)
		pool.SetLimit(s.opts.WriteConcurrency)
		for _, u := range batch {
			pool.Go(func() error {
				err := odoo.Retry(poolCtx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
					return odoo.Write(poolCtx, s.rpc, "stock.quant", []int64{u.QuantID}, map[string]any{"inventory_quantity": u.Qty})
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Error("quant write failed", slog.Int64("quant_id", u.QuantID), slog.Any("error", err))
					counts.Errors++
					return nil
				}
				successIDs = append(successIDs, u.QuantID)
				return nil
			})
		}
		_ = pool.Wait()

		if len(successIDs) == 0 {
			continue
		}
		if err := s.applyInventory(ctx, successIDs); err != nil {
			s.logger.Error("batch apply inventory failed", slog.Int("ids", len(successIDs)), slog.Any("error", err))
			counts.Errors += len(successIDs)
			continue
		}
		counts.StockApplied += len(successIDs)
	}
}

// applyInventory commits written quantities. Odoo 18 returns None from this
// action, which the XML-RPC layer cannot marshal; that failure is success.
func (s *Service) applyInventory(ctx context.Context, ids []int64) error {
	_, err := s.rpc.ExecuteKw(ctx, "stock.quant", "action_apply_inventory", []any{ids}, nil)
	if err != nil && odoo.IsMarshalNone(err) {
		return nil
	}
	return err
}
