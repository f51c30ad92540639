// Package odoosync implements the ERP→Odoo reconciliation pipeline: extract
// and normalize catalog state from the ERP, diff it against live Odoo state,
// and apply the minimal change-set with batched, retried, concurrency-bounded
// writes. Every run rebuilds its state from scratch; convergence relies on
// idempotent re-diffing, not on a change log.
package odoosync

import (
	"fmt"
	"strings"
	"time"
)

// Level places a category key within the ERP's 3-level hierarchy.
type Level uint8

const (
	LevelRoot Level = iota
	LevelDepartment
	LevelCategory
	LevelSubCategory
)

// CategoryKey identifies an ERP category node. The ERP's category and
// subcategory ids are only unique within their parent, so identity is the
// full id path, not a single id. The zero value is the synthetic root.
type CategoryKey struct {
	Level        Level
	Depto        int
	Categoria    int
	SubCategoria int
}

// RootKey is the synthetic root every department hangs from.
var RootKey = CategoryKey{}

// DeptKey builds a department-level key.
func DeptKey(depto int) CategoryKey {
	return CategoryKey{Level: LevelDepartment, Depto: depto}
}

// CatKey builds a category-level key.
func CatKey(depto, categoria int) CategoryKey {
	return CategoryKey{Level: LevelCategory, Depto: depto, Categoria: categoria}
}

// SubCatKey builds a subcategory-level key.
func SubCatKey(depto, categoria, sub int) CategoryKey {
	return CategoryKey{Level: LevelSubCategory, Depto: depto, Categoria: categoria, SubCategoria: sub}
}

// Parent returns the enclosing key; the root's parent is itself.
func (k CategoryKey) Parent() CategoryKey {
	switch k.Level {
	case LevelSubCategory:
		return CatKey(k.Depto, k.Categoria)
	case LevelCategory:
		return DeptKey(k.Depto)
	default:
		return RootKey
	}
}

// String renders the key for logs.
func (k CategoryKey) String() string {
	switch k.Level {
	case LevelDepartment:
		return fmt.Sprintf("D:%d", k.Depto)
	case LevelCategory:
		return fmt.Sprintf("C:%d:%d", k.Depto, k.Categoria)
	case LevelSubCategory:
		return fmt.Sprintf("S:%d:%d:%d", k.Depto, k.Categoria, k.SubCategoria)
	default:
		return "ROOT"
	}
}

// CategoryNode is one node of the per-run category forest.
type CategoryNode struct {
	Key    CategoryKey
	Name   string
	Parent CategoryKey
}

// BranchStock is the quantity an article holds at one branch.
type BranchStock struct {
	Qty        float64
	BranchName string
}

// NormalizedArticle is the canonical in-memory form of one ERP article,
// rebuilt every run and discarded at run end.
type NormalizedArticle struct {
	SKU             string
	Barcode         string
	ExtraBarcodes   []string
	Name            string
	DeptoKey        CategoryKey
	CategoriaKey    CategoryKey
	SubCategoriaKey CategoryKey
	UOMName         string
	ListPrice       float64
	StandardPrice   float64
	UpdatedAt       time.Time
	Active          bool
	StockByBranch   map[string]BranchStock
	// Hash is a human-debug fingerprint; the diff never consults it.
	Hash string
}

// Snapshot is the full normalized output of one extract.
type Snapshot struct {
	Articles   map[string]*NormalizedArticle
	Categories map[CategoryKey]*CategoryNode
	// Branches maps external branch code to display name.
	Branches map[string]string
}

// ProductUpdate is a sparse field-level change for one existing product.
type ProductUpdate struct {
	OdooID  int64
	SKU     string
	Changes map[string]any
}

// Changeset partitions the catalog diff. A product appears in at most one
// of the three sets per run.
type Changeset struct {
	ToCreate  []*NormalizedArticle
	ToUpdate  []ProductUpdate
	ToArchive []int64
}

// Empty reports whether the diff found nothing to do.
func (c Changeset) Empty() bool {
	return len(c.ToCreate) == 0 && len(c.ToUpdate) == 0 && len(c.ToArchive) == 0
}

// StockUpdate is one (product, location) quantity target. A zero QuantID
// means no quant exists yet and one must be created.
type StockUpdate struct {
	ProductID  int64
	LocationID int64
	Qty        float64
	QuantID    int64
}

const (
	// PriceEpsilon is the tolerance below which price differences are
	// treated as float noise, not real changes. Strictly-greater compare.
	PriceEpsilon = 0.01
	// QtyEpsilon is the stock-quantity comparison tolerance.
	QtyEpsilon = 0.001

	// RootCategoryName is the fixed name of the synthetic root node in Odoo.
	RootCategoryName = "Proconsa"
	// UndefinedName labels ERP hierarchy levels with no name.
	UndefinedName = "Sin Definir"

	createBatchSize  = 50
	writeBatchSize   = 200
	quantCreateBatch = 200
	quantUpdateBatch = 100
	productPageSize  = 500
	quantSearchBatch = 2000
	imageBlobBatch   = 10
)

// uomIDByName maps ERP unit-of-measure names to Odoo uom.uom ids. Anything
// unmapped sells as units.
var uomIDByName = map[string]int64{
	"PIEZA": 1, "SIN DEFINIR": 1, "BOLSA": 1, "BULTO/ATADO": 1,
	"CAJA": 1, "CUBETA": 1, "HOJA": 1, "JUEGO": 1, "PAQUETE": 1,
	"ROLLO": 1, "SACO": 1, "TIBOR": 1, "CARRETE": 1, "PACA": 1,
	"GALON":          24,
	"KILO":           12,
	"LITRO":          10,
	"METRO CUADRADO": 9,
	"METRO CUBICO":   11,
	"METRO LINEAL":   5,
	"PIE CUADRADO":   21,
	"PIE LINEAL":     18,
}

// ResolveUOM maps an ERP unit name to an Odoo uom id.
func ResolveUOM(name string) int64 {
	if id, ok := uomIDByName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return id
	}
	return 1
}

// contentHash fingerprints the fields a human would check first when
// debugging a diff. Informational only.
func contentHash(name string, list, std float64, sub CategoryKey, barcode string) string {
	return fmt.Sprintf("%s|%.4f|%.4f|%s|%s", name, list, std, sub, barcode)
}
