package odoosync

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

const fingerprintField = "x_image_fp"

// ImageFingerprint derives the change-detection key from blob metadata.
// Size plus modification time is cheap to read on both sides and close
// enough to a checksum for catalog photos.
func ImageFingerprint(size int64, unixTS int64) string {
	return fmt.Sprintf("%d|%d", size, unixTS)
}

// ensureFingerprintField provisions the custom fingerprint field on
// product.template on first use. Schema extension is lazy rather than a
// deployment precondition so a fresh Odoo database needs no manual setup.
func (s *Service) ensureFingerprintField(ctx context.Context) error {
	existing, err := odoo.SearchRead(ctx, s.rpc, "ir.model.fields",
		[]any{[]any{"model", "=", "product.template"}, []any{"name", "=", fingerprintField}},
		[]string{"id"}, odoo.SearchOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("odoosync: lookup fingerprint field: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	models, err := odoo.SearchRead(ctx, s.rpc, "ir.model",
		[]any{[]any{"model", "=", "product.template"}},
		[]string{"id"}, odoo.SearchOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("odoosync: lookup product.template model: %w", err)
	}
	if len(models) == 0 {
		return fmt.Errorf("odoosync: model product.template not found")
	}

	if s.opts.DryRun {
		s.logger.Info("dry run: would create fingerprint field", slog.String("field", fingerprintField))
		return nil
	}
	_, err = odoo.Create(ctx, s.rpc, "ir.model.fields", []map[string]any{{
		"name":              fingerprintField,
		"model_id":          models[0].ID(),
		"field_description": "Image fingerprint",
		"ttype":             "char",
	}})
	if err != nil {
		return fmt.Errorf("odoosync: create fingerprint field: %w", err)
	}
	s.logger.Info("created fingerprint field", slog.String("field", fingerprintField))
	return nil
}

// SyncImages pushes changed catalog images. Change detection compares the
// stored fingerprint against ERP metadata so unchanged blobs are never read
// out of the ERP, let alone transferred.
func (s *Service) SyncImages(ctx context.Context) error {
	if err := s.ensureFingerprintField(ctx); err != nil {
		return err
	}

	meta, err := s.erp.FetchImageMetadata(ctx)
	if err != nil {
		return fmt.Errorf("odoosync: fetch image metadata: %w", err)
	}
	wantFP := make(map[string]string, len(meta))
	for _, m := range meta {
		if sku := strings.TrimSpace(m.SKU); sku != "" {
			wantFP[sku] = ImageFingerprint(m.Size, m.ModifiedAt.Unix())
		}
	}

	templates, err := odoo.SearchReadAll(ctx, s.rpc, "product.template",
		[]any{[]any{"default_code", "!=", false}},
		[]string{"id", "default_code", fingerprintField}, productPageSize, nil)
	if err != nil {
		return fmt.Errorf("odoosync: fetch product fingerprints: %w", err)
	}

	type target struct {
		sku string
		id  int64
		fp  string
	}
	var pending []target
	for _, t := range templates {
		sku := strings.TrimSpace(t.Str("default_code"))
		want, ok := wantFP[sku]
		if !ok || t.Str(fingerprintField) == want {
			continue
		}
		pending = append(pending, target{sku: sku, id: t.ID(), fp: want})
	}
	s.logger.Info("image changes computed",
		slog.Int("pending", len(pending)),
		slog.Int("erp_images", len(wantFP)),
	)
	if len(pending) == 0 || s.opts.DryRun {
		return nil
	}

	counts := s.recorder.Counts()
	for _, batch := range chunk(pending, imageBlobBatch) {
		skus := make([]string, len(batch))
		bySKU := make(map[string]target, len(batch))
		for i, t := range batch {
			skus[i] = t.sku
			bySKU[t.sku] = t
		}
		blobs, err := s.erp.FetchImageBlobs(ctx, skus)
		if err != nil {
			s.logger.Error("image blob fetch failed", slog.Int("size", len(batch)), slog.Any("error", err))
			counts.Errors += len(batch)
			continue
		}

		var mu sync.Mutex
		pool, poolCtx := errgroup.WithContext(ctx)
		pool.SetLimit(s.opts.ImageConcurrency)
		for _, blob := range blobs {
			t, ok := bySKU[blob.SKU]
			if !ok || len(blob.Data) == 0 {
				continue
			}
			encoded := base64.StdEncoding.EncodeToString(blob.Data)
			pool.Go(func() error {
				// Image and fingerprint land in one write: a torn pair would
				// either resend (harmless) or mask a stale image (not).
				err := odoo.Retry(poolCtx, s.opts.WriteRetries, s.opts.RetryDelay, func() error {
					return odoo.Write(poolCtx, s.rpc, "product.template", []int64{t.id}, map[string]any{
						"image_1920":     encoded,
						fingerprintField: t.fp,
					})
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Error("image write failed", slog.String("sku", t.sku), slog.Any("error", err))
					counts.Errors++
					return nil
				}
				counts.Updated++
				return nil
			})
		}
		_ = pool.Wait()
	}
	return nil
}
