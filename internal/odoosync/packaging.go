package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

// ReconcilePackagings keeps one product.packaging per extra barcode of each
// synced product: scannable alternate codes become unit packagings, and
// packagings whose barcode left the ERP equivalents set are removed.
func (s *Service) ReconcilePackagings(ctx context.Context, articles map[string]*NormalizedArticle, variantByCode map[string]int64) error {
	desired := make(map[int64]map[string]bool)
	claimed := make(map[string]string) // barcode → owning SKU, first wins
	for sku, article := range articles {
		productID, ok := variantByCode[sku]
		if !ok || len(article.ExtraBarcodes) == 0 {
			continue
		}
		for _, bc := range article.ExtraBarcodes {
			bc = strings.TrimSpace(bc)
			if bc == "" {
				continue
			}
			if owner, taken := claimed[bc]; taken && owner != sku {
				s.logger.Warn("extra barcode claimed by another article, skipping",
					slog.String("barcode", bc),
					slog.String("sku", sku),
					slog.String("owner", owner),
				)
				continue
			}
			claimed[bc] = sku
			if desired[productID] == nil {
				desired[productID] = make(map[string]bool)
			}
			desired[productID][bc] = true
		}
	}

	existing, err := odoo.SearchReadAll(ctx, s.rpc, "product.packaging",
		[]any{[]any{"barcode", "!=", false}},
		[]string{"id", "product_id", "barcode"}, productPageSize, nil)
	if err != nil {
		return fmt.Errorf("odoosync: fetch packagings: %w", err)
	}

	syncedProducts := make(map[int64]bool, len(variantByCode))
	for _, id := range variantByCode {
		syncedProducts[id] = true
	}

	var stale []int64
	for _, p := range existing {
		productID := p.Ref("product_id")
		barcode := strings.TrimSpace(p.Str("barcode"))
		if !syncedProducts[productID] {
			// Not a product this bridge manages; leave it alone.
			continue
		}
		if desired[productID][barcode] {
			delete(desired[productID], barcode)
		} else {
			stale = append(stale, p.ID())
		}
	}

	var vals []map[string]any
	for productID, barcodes := range desired {
		for bc := range barcodes {
			vals = append(vals, map[string]any{
				"product_id": productID,
				"name":       bc,
				"barcode":    bc,
				"qty":        1,
			})
		}
	}

	s.logger.Info("packaging changes computed",
		slog.Int("create", len(vals)),
		slog.Int("unlink", len(stale)),
	)
	if s.opts.DryRun {
		return nil
	}

	counts := s.recorder.Counts()
	for _, batch := range chunk(vals, createBatchSize) {
		err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
			_, err := odoo.Create(ctx, s.rpc, "product.packaging", batch)
			return err
		})
		if err != nil {
			s.logger.Error("packaging create batch failed", slog.Int("size", len(batch)), slog.Any("error", err))
			counts.Errors += len(batch)
			continue
		}
		counts.Created += len(batch)
	}
	for _, batch := range chunk(stale, writeBatchSize) {
		err := odoo.Retry(ctx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
			return odoo.Unlink(ctx, s.rpc, "product.packaging", batch)
		})
		if err != nil {
			s.logger.Error("packaging unlink batch failed", slog.Int("size", len(batch)), slog.Any("error", err))
			counts.Errors += len(batch)
		}
	}
	return nil
}
