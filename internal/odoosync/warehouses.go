package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

// SyncWarehouses ensures one remote warehouse exists per ERP branch code and
// resolves each to its default stock location. Creating a warehouse makes
// Odoo generate the location server-side, so new warehouses need a read-back
// to learn the lot_stock_id.
//
// Per-branch failures are logged and the branch is excluded from stock sync;
// one broken branch must not block the rest of the run.
func (s *Service) SyncWarehouses(ctx context.Context, branches map[string]string) (map[string]int64, error) {
	existing, err := odoo.SearchReadAll(ctx, s.rpc, "stock.warehouse", []any{}, []string{"id", "name", "code", "lot_stock_id"}, productPageSize, nil)
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch warehouses: %w", err)
	}

	locByCode := make(map[string]int64, len(branches))
	for _, wh := range existing {
		code := strings.TrimSpace(wh.Str("code"))
		locID := wh.Ref("lot_stock_id")
		if code != "" && locID != 0 {
			locByCode[code] = locID
		}
	}

	for code, name := range branches {
		if _, ok := locByCode[code]; ok {
			continue
		}
		if name == "" {
			name = "Sucursal " + code
		}
		ids, err := odoo.Create(ctx, s.rpc, "stock.warehouse", map[string]any{"name": name, "code": code})
		if err != nil {
			s.logger.Error("create warehouse failed", slog.String("code", code), slog.Any("error", err))
			continue
		}
		recs, err := odoo.ReadRecords(ctx, s.rpc, "stock.warehouse", ids[:1], []string{"lot_stock_id"}, 1)
		if err != nil || len(recs) == 0 {
			s.logger.Error("read back warehouse location failed", slog.String("code", code), slog.Any("error", err))
			continue
		}
		if locID := recs[0].Ref("lot_stock_id"); locID != 0 {
			locByCode[code] = locID
			s.logger.Info("created warehouse",
				slog.String("code", code),
				slog.String("name", name),
				slog.Int64("location_id", locID),
			)
		}
	}

	return locByCode, nil
}
