package odoosync

import "strings"

// Normalize converts raw ERP rows into the canonical per-run model: articles
// keyed by SKU, the 3-level category forest, and the set of branch codes.
func Normalize(articles []ArticleRow, stock []StockRow, equivalents []EquivalentRow) *Snapshot {
	snap := &Snapshot{
		Articles:   make(map[string]*NormalizedArticle, len(articles)),
		Categories: make(map[CategoryKey]*CategoryNode),
		Branches:   make(map[string]string),
	}

	// Stock indexed by SKU; branch codes collected from the stock extract
	// because the external code is the durable public branch identifier.
	stockBySKU := make(map[string][]StockRow)
	for _, row := range stock {
		sku := strings.TrimSpace(row.SKU)
		if sku == "" {
			continue
		}
		stockBySKU[sku] = append(stockBySKU[sku], row)
		code := strings.TrimSpace(row.BranchCode)
		if code != "" {
			snap.Branches[code] = strings.TrimSpace(row.BranchName)
		}
	}

	equivBySKU := make(map[string][]string)
	for _, row := range equivalents {
		sku := strings.TrimSpace(row.SKU)
		code := strings.TrimSpace(row.Code)
		if sku == "" || code == "" {
			continue
		}
		equivBySKU[sku] = append(equivBySKU[sku], code)
	}

	for _, a := range articles {
		sku := strings.TrimSpace(a.SKU)
		if sku == "" {
			// No SKU means no join key to any downstream system.
			continue
		}

		deptoKey := DeptKey(a.DeptoID)
		categoriaKey := CatKey(a.DeptoID, a.CategoriaID)
		subKey := SubCatKey(a.DeptoID, a.CategoriaID, a.SubCategoriaID)

		ensureNode(snap.Categories, deptoKey, a.DeptoName, RootKey)
		ensureNode(snap.Categories, categoriaKey, a.CategoriaName, deptoKey)
		ensureNode(snap.Categories, subKey, a.SubCategoriaName, categoriaKey)

		barcode, extras := resolveBarcodes(sku, a.InternalCode, equivBySKU[sku])

		stockByBranch := make(map[string]BranchStock)
		for _, sr := range stockBySKU[sku] {
			code := strings.TrimSpace(sr.BranchCode)
			if code == "" {
				continue
			}
			stockByBranch[code] = BranchStock{Qty: sr.Qty, BranchName: strings.TrimSpace(sr.BranchName)}
		}

		name := strings.TrimSpace(a.Name)
		snap.Articles[sku] = &NormalizedArticle{
			SKU:             sku,
			Barcode:         barcode,
			ExtraBarcodes:   extras,
			Name:            name,
			DeptoKey:        deptoKey,
			CategoriaKey:    categoriaKey,
			SubCategoriaKey: subKey,
			UOMName:         fallback(a.UOMName, "PIEZA"),
			ListPrice:       a.ListPrice,
			StandardPrice:   a.StandardPrice,
			UpdatedAt:       a.UpdatedAt,
			Active:          true,
			StockByBranch:   stockByBranch,
			Hash:            contentHash(name, a.ListPrice, a.StandardPrice, subKey, barcode),
		}
	}

	return snap
}

// resolveBarcodes picks the primary scannable code and the extras. Priority:
// the ERP internal code when it differs from the SKU, else the first
// registered equivalent, else the SKU itself. The SKU is the join key and is
// never exposed as an extra.
func resolveBarcodes(sku, internalCode string, equivalents []string) (string, []string) {
	internal := strings.TrimSpace(internalCode)
	if internal == sku {
		internal = ""
	}

	candidates := make([]string, 0, len(equivalents)+1)
	seen := map[string]bool{sku: true}
	if internal != "" {
		candidates = append(candidates, internal)
		seen[internal] = true
	}
	for _, code := range equivalents {
		if seen[code] {
			continue
		}
		seen[code] = true
		candidates = append(candidates, code)
	}

	if len(candidates) == 0 {
		return sku, nil
	}
	return candidates[0], candidates[1:]
}

func ensureNode(tree map[CategoryKey]*CategoryNode, key CategoryKey, name string, parent CategoryKey) {
	if _, ok := tree[key]; ok {
		return
	}
	tree[key] = &CategoryNode{Key: key, Name: fallback(name, UndefinedName), Parent: parent}
}

func fallback(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}
