package odoosync

import (
	"log/slog"
	"math"
	"strings"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

// DiffInput carries the state both sides of the product comparison need.
type DiffInput struct {
	Articles    map[string]*NormalizedArticle
	Products    []odoo.Record
	CategIDs    map[CategoryKey]int64
	POSCategIDs map[CategoryKey]int64
}

// ComputeDiff compares the canonical article set against the remote product
// set (archived included) and partitions the result into create, sparse
// field-level update, and archive sets. The diff is always field-by-field;
// the article hash plays no part in the decision.
func ComputeDiff(in DiffInput, logger *slog.Logger) Changeset {
	byCode := make(map[string]odoo.Record, len(in.Products))
	barcodeOwner := make(map[string]string)
	for _, p := range in.Products {
		code := strings.TrimSpace(p.Str("default_code"))
		if code == "" {
			// Without a join key the record cannot participate in sync.
			continue
		}
		byCode[code] = p
		if bc := strings.TrimSpace(p.Str("barcode")); bc != "" {
			barcodeOwner[bc] = code
		}
	}

	var cs Changeset

	for sku, article := range in.Articles {
		// Barcode-uniqueness guard: if another SKU already owns this barcode
		// remotely, strip it for this run instead of issuing a write the
		// remote would reject. Re-evaluated fresh every run.
		barcode := article.Barcode
		if owner, taken := barcodeOwner[barcode]; taken && owner != sku {
			logger.Warn("barcode owned by another product, skipping assignment",
				slog.String("sku", sku),
				slog.String("barcode", barcode),
				slog.String("owner", owner),
			)
			barcode = ""
		}

		remote, ok := byCode[sku]
		if !ok {
			if barcode != article.Barcode {
				stripped := *article
				stripped.Barcode = ""
				cs.ToCreate = append(cs.ToCreate, &stripped)
			} else {
				cs.ToCreate = append(cs.ToCreate, article)
			}
			continue
		}

		changes := diffFields(article, barcode, remote, in.CategIDs, in.POSCategIDs)
		if len(changes) > 0 {
			cs.ToUpdate = append(cs.ToUpdate, ProductUpdate{OdooID: remote.ID(), SKU: sku, Changes: changes})
		}
	}

	// Any active remote product whose code vanished from the extract was
	// dropped by the ERP entirely; archive it (never delete — order and
	// history references must survive).
	for code, remote := range byCode {
		if _, present := in.Articles[code]; !present && remote.Bool("active") {
			cs.ToArchive = append(cs.ToArchive, remote.ID())
		}
	}

	return cs
}

func diffFields(article *NormalizedArticle, barcode string, remote odoo.Record, categIDs, posCategIDs map[CategoryKey]int64) map[string]any {
	changes := make(map[string]any)

	if strings.TrimSpace(remote.Str("name")) != article.Name {
		changes["name"] = article.Name
	}
	if math.Abs(remote.Float("list_price")-article.ListPrice) > PriceEpsilon {
		changes["list_price"] = article.ListPrice
	}
	if math.Abs(remote.Float("standard_price")-article.StandardPrice) > PriceEpsilon {
		changes["standard_price"] = article.StandardPrice
	}

	if target := categIDs[article.SubCategoriaKey]; target != 0 && remote.Ref("categ_id") != target {
		changes["categ_id"] = target
	}

	if barcode != "" && strings.TrimSpace(remote.Str("barcode")) != barcode {
		changes["barcode"] = barcode
	}

	// Archive and reactivate are both plain active-flag updates.
	if remote.Bool("active") != article.Active {
		changes["active"] = article.Active
	}

	// Single-category POS model: only the first element of the remote
	// membership array counts, and the target falls back up the hierarchy.
	if target := posCategory(article, posCategIDs); target != 0 {
		current := int64(0)
		if ids := remote.IDs("pos_categ_ids"); len(ids) > 0 {
			current = ids[0]
		}
		if current != target {
			changes["pos_categ_ids"] = []any{[]any{6, 0, []int64{target}}}
		}
	}
	if remote.Bool("available_in_pos") != article.Active {
		changes["available_in_pos"] = article.Active
	}

	return changes
}

// posCategory resolves the POS category for an article: subcategory first,
// then category, department, root.
func posCategory(article *NormalizedArticle, posCategIDs map[CategoryKey]int64) int64 {
	for _, key := range []CategoryKey{article.SubCategoriaKey, article.CategoriaKey, article.DeptoKey, RootKey} {
		if id := posCategIDs[key]; id != 0 {
			return id
		}
	}
	return 0
}
