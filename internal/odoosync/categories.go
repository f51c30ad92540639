package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

// parentName identifies a remote node by (parent id, name) — the only
// identity the remote system offers, since it knows nothing of ERP keys.
type parentName struct {
	parent int64
	name   string
}

// SyncCategories idempotently mirrors the category forest into the given
// remote model (product.category and pos.category share the algorithm) and
// returns the ERP-key → remote-id mapping.
//
// Nodes are processed strictly by depth so every child's parent id is
// resolved before the child is considered, and all missing nodes of one
// depth go out in a single batched create. That keeps the remote round
// trips at O(depth), not O(nodes).
func (s *Service) SyncCategories(ctx context.Context, model string, tree map[CategoryKey]*CategoryNode) (map[CategoryKey]int64, error) {
	existing, err := odoo.SearchReadAll(ctx, s.rpc, model, []any{}, []string{"id", "name", "parent_id"}, productPageSize, nil)
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch %s: %w", model, err)
	}

	idByKey := make(map[CategoryKey]int64, len(tree)+1)

	rootID := int64(0)
	lookup := make(map[parentName]int64, len(existing))
	for _, cat := range existing {
		name := strings.TrimSpace(cat.Str("name"))
		lookup[parentName{parent: cat.Ref("parent_id"), name: name}] = cat.ID()
		if cat.Ref("parent_id") == 0 && name == RootCategoryName {
			rootID = cat.ID()
		}
	}
	if rootID == 0 {
		ids, err := odoo.Create(ctx, s.rpc, model, map[string]any{"name": RootCategoryName, "parent_id": false})
		if err != nil {
			return nil, fmt.Errorf("odoosync: create %s root: %w", model, err)
		}
		rootID = ids[0]
		s.logger.Info("created root category", slog.String("model", model), slog.Int64("id", rootID))
	}
	idByKey[RootKey] = rootID

	for _, level := range []Level{LevelDepartment, LevelCategory, LevelSubCategory} {
		var pending []*CategoryNode
		var parents []int64

		for _, node := range tree {
			if node.Key.Level != level {
				continue
			}
			parentID, ok := idByKey[node.Parent]
			if !ok {
				parentID = rootID
			}
			if id, ok := lookup[parentName{parent: parentID, name: node.Name}]; ok {
				idByKey[node.Key] = id
				continue
			}
			pending = append(pending, node)
			parents = append(parents, parentID)
		}

		if len(pending) == 0 {
			continue
		}
		vals := make([]map[string]any, len(pending))
		for i, node := range pending {
			vals[i] = map[string]any{"name": node.Name, "parent_id": parents[i]}
		}
		newIDs, err := odoo.Create(ctx, s.rpc, model, vals)
		if err != nil {
			return nil, fmt.Errorf("odoosync: create %s depth %d: %w", model, level, err)
		}
		if len(newIDs) != len(pending) {
			return nil, fmt.Errorf("odoosync: create %s depth %d: got %d ids for %d nodes", model, level, len(newIDs), len(pending))
		}
		for i, node := range pending {
			idByKey[node.Key] = newIDs[i]
			lookup[parentName{parent: parents[i], name: node.Name}] = newIDs[i]
		}
		s.logger.Info("created categories",
			slog.String("model", model),
			slog.Int("depth", int(level)),
			slog.Int("count", len(newIDs)),
		)
	}

	return idByKey, nil
}
