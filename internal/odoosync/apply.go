package odoosync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// applyCreates inserts new products in fixed-size batches. A failed batch
// falls back to per-item creates so one rejected record cannot sink its
// batch-mates.
func (s *Service) applyCreates(ctx context.Context, toCreate []*NormalizedArticle, categIDs, posCategIDs map[CategoryKey]int64) {
	if len(toCreate) == 0 {
		return
	}
	if s.opts.DryRun {
		s.logger.Info("dry run: skipping product creates", slog.Int("count", len(toCreate)))
		return
	}

	counts := s.recorder.Counts()
	for _, batch := range chunk(toCreate, createBatchSize) {
		vals := make([]map[string]any, len(batch))
		for i, a := range batch {
			vals[i] = s.createValues(a, categIDs, posCategIDs)
		}

		err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
			ids, err := odoo.Create(ctx, s.rpc, "product.template", vals)
			if err != nil {
				return err
			}
			counts.Created += len(ids)
			return nil
		})
		if err == nil {
			continue
		}

		s.logger.Warn("batch create failed, falling back to individual creates", slog.Any("error", err))
		for i, v := range vals {
			if _, err := odoo.Create(ctx, s.rpc, "product.template", v); err != nil {
				s.logger.Error("create product failed", slog.String("sku", batch[i].SKU), slog.Any("error", err))
				counts.Errors++
				continue
			}
			counts.Created++
		}
	}
	s.logger.Info("creates applied", slog.Int("created", counts.Created), slog.Int("requested", len(toCreate)))
}

func (s *Service) createValues(a *NormalizedArticle, categIDs, posCategIDs map[CategoryKey]int64) map[string]any {
	categID := int64(1)
	for _, key := range []CategoryKey{a.SubCategoriaKey, a.CategoriaKey, a.DeptoKey, RootKey} {
		if id := categIDs[key]; id != 0 {
			categID = id
			break
		}
	}
	uomID := ResolveUOM(a.UOMName)

	vals := map[string]any{
		"name":             a.Name,
		"default_code":     a.SKU,
		"list_price":       a.ListPrice,
		"standard_price":   a.StandardPrice,
		"categ_id":         categID,
		"uom_id":           uomID,
		"uom_po_id":        uomID,
		"type":             "consu",
		"is_storable":      true,
		"sale_ok":          true,
		"purchase_ok":      true,
		"active":           true,
		"available_in_pos": a.Active,
	}
	// Created with their POS placement so the next diff sees them settled.
	if target := posCategory(a, posCategIDs); target != 0 {
		vals["pos_categ_ids"] = []any{[]any{6, 0, []int64{target}}}
	}
	if a.Barcode != "" {
		vals["barcode"] = a.Barcode
	} else {
		vals["barcode"] = false
	}
	return vals
}

// applyUpdates splits each sparse change-map into two lanes.
//
// Categorical lane: non-price fields repeat heavily across a catalog (a
// whole subtree moving category, a batch of reactivations), so identical
// change-maps are grouped and written as one call per id-batch.
//
// Numeric lane: prices and costs are unique per product, so they go through
// a bounded worker pool with per-item retry.
func (s *Service) applyUpdates(ctx context.Context, toUpdate []ProductUpdate) {
	if len(toUpdate) == 0 {
		return
	}
	if s.opts.DryRun {
		s.logger.Info("dry run: skipping product updates", slog.Int("count", len(toUpdate)))
		return
	}

	type group struct {
		ids     []int64
		changes map[string]any
	}
	groups := make(map[string]*group)
	var numeric []ProductUpdate

	for _, u := range toUpdate {
		categorical := make(map[string]any)
		prices := make(map[string]any)
		for field, value := range u.Changes {
			if field == "list_price" || field == "standard_price" {
				prices[field] = value
			} else {
				categorical[field] = value
			}
		}
		if len(categorical) > 0 {
			key, err := json.Marshal(categorical)
			if err != nil {
				s.logger.Error("unencodable change map", slog.String("sku", u.SKU), slog.Any("error", err))
				s.recorder.Counts().Errors++
				continue
			}
			g, ok := groups[string(key)]
			if !ok {
				g = &group{changes: categorical}
				groups[string(key)] = g
			}
			g.ids = append(g.ids, u.OdooID)
		}
		if len(prices) > 0 {
			numeric = append(numeric, ProductUpdate{OdooID: u.OdooID, SKU: u.SKU, Changes: prices})
		}
	}

	counts := s.recorder.Counts()
	updated := make(map[int64]bool, len(toUpdate))
	var mu sync.Mutex

	for _, g := range groups {
		for _, ids := range chunk(g.ids, writeBatchSize) {
			err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
				return odoo.Write(ctx, s.rpc, "product.template", ids, g.changes)
			})
			if err != nil {
				s.logger.Error("grouped update failed", slog.Int("ids", len(ids)), slog.Any("error", err))
				counts.Errors += len(ids)
				continue
			}
			for _, id := range ids {
				updated[id] = true
			}
		}
	}

	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(s.opts.WriteConcurrency)
	for _, item := range numeric {
		pool.Go(func() error {
			err := odoo.Retry(poolCtx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
				return odoo.Write(poolCtx, s.rpc, "product.template", []int64{item.OdooID}, item.Changes)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("price update failed", slog.String("sku", item.SKU), slog.Any("error", err))
				counts.Errors++
				return nil
			}
			updated[item.OdooID] = true
			return nil
		})
	}
	_ = pool.Wait()

	counts.Updated += len(updated)
	s.logger.Info("updates applied",
		slog.Int("updated", len(updated)),
		slog.Int("groups", len(groups)),
		slog.Int("price_items", len(numeric)),
	)
}

// applyArchives flips active off in batches. Archive is never a delete.
func (s *Service) applyArchives(ctx context.Context, toArchive []int64) {
	if len(toArchive) == 0 {
		return
	}
	if s.opts.DryRun {
		s.logger.Info("dry run: skipping archives", slog.Int("count", len(toArchive)))
		return
	}

	counts := s.recorder.Counts()
	for _, ids := range chunk(toArchive, writeBatchSize) {
		err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
			return odoo.Write(ctx, s.rpc, "product.template", ids, map[string]any{"active": false})
		})
		if err != nil {
			s.logger.Error("archive batch failed", slog.Int("ids", len(ids)), slog.Any("error", err))
			counts.Errors += len(ids)
			continue
		}
		counts.Archived += len(ids)
	}
	s.logger.Info("archives applied", slog.Int("archived", counts.Archived))
}
