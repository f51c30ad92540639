package odoosync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsBlankSKU(t *testing.T) {
	snap := Normalize([]ArticleRow{
		{SKU: "   ", Name: "ghost"},
		{SKU: "A1", Name: "real", DeptoID: 1, DeptoName: "Ferretería"},
	}, nil, nil)

	require.Len(t, snap.Articles, 1)
	require.Contains(t, snap.Articles, "A1")
}

func TestNormalizeCategoryFallback(t *testing.T) {
	snap := Normalize([]ArticleRow{
		{SKU: "A1", Name: "item", DeptoID: 3, DeptoName: "", CategoriaID: 7, CategoriaName: "  ", SubCategoriaID: 2, SubCategoriaName: "Tornillos"},
	}, nil, nil)

	require.Len(t, snap.Categories, 3)
	assert.Equal(t, UndefinedName, snap.Categories[DeptKey(3)].Name)
	assert.Equal(t, UndefinedName, snap.Categories[CatKey(3, 7)].Name)
	assert.Equal(t, "Tornillos", snap.Categories[SubCatKey(3, 7, 2)].Name)

	// Hierarchy is linked through the article, parents included.
	assert.Equal(t, RootKey, snap.Categories[DeptKey(3)].Parent)
	assert.Equal(t, DeptKey(3), snap.Categories[CatKey(3, 7)].Parent)
	assert.Equal(t, CatKey(3, 7), snap.Categories[SubCatKey(3, 7, 2)].Parent)
}

func TestNormalizeCategoryKeysScopedToParent(t *testing.T) {
	// Category id 5 appears under two departments; the ERP's ids are only
	// unique within their parent, so the keys must not collide.
	snap := Normalize([]ArticleRow{
		{SKU: "A1", DeptoID: 1, DeptoName: "Uno", CategoriaID: 5, CategoriaName: "Cat de Uno"},
		{SKU: "A2", DeptoID: 2, DeptoName: "Dos", CategoriaID: 5, CategoriaName: "Cat de Dos"},
	}, nil, nil)

	require.NotEqual(t, CatKey(1, 5), CatKey(2, 5))
	assert.Equal(t, "Cat de Uno", snap.Categories[CatKey(1, 5)].Name)
	assert.Equal(t, "Cat de Dos", snap.Categories[CatKey(2, 5)].Name)
}

func TestResolveBarcodesPriority(t *testing.T) {
	// Internal code differing from the SKU wins; equivalents become extras.
	primary, extras := resolveBarcodes("A1", "7501000000017", []string{"111", "222"})
	assert.Equal(t, "7501000000017", primary)
	assert.Equal(t, []string{"111", "222"}, extras)

	// Internal code equal to the SKU is ignored; first equivalent wins.
	primary, extras = resolveBarcodes("A1", "A1", []string{"111", "222"})
	assert.Equal(t, "111", primary)
	assert.Equal(t, []string{"222"}, extras)

	// No candidates at all: the SKU itself is the barcode, no extras.
	primary, extras = resolveBarcodes("A1", "A1", nil)
	assert.Equal(t, "A1", primary)
	assert.Empty(t, extras)
}

func TestResolveBarcodesNeverExposesSKUAsExtra(t *testing.T) {
	// The SKU arrives registered as its own equivalent; it must not leak
	// into extras, and duplicates collapse.
	primary, extras := resolveBarcodes("A1", "7501", []string{"A1", "7501", "333"})
	assert.Equal(t, "7501", primary)
	assert.Equal(t, []string{"333"}, extras)
}

func TestNormalizeStockAttributedByExternalCode(t *testing.T) {
	snap := Normalize(
		[]ArticleRow{{SKU: "A1", Name: "item", DeptoID: 1}},
		[]StockRow{
			{SKU: "A1", BranchCode: "101", BranchName: "Matriz", Qty: 12},
			{SKU: "A1", BranchCode: "403", BranchName: "Sur", Qty: -2},
			{SKU: "ZZ", BranchCode: "102", BranchName: "Norte", Qty: 5},
		},
		nil,
	)

	a := snap.Articles["A1"]
	require.NotNil(t, a)
	require.Len(t, a.StockByBranch, 2)
	assert.Equal(t, 12.0, a.StockByBranch["101"].Qty)
	assert.Equal(t, -2.0, a.StockByBranch["403"].Qty)

	// Branch codes come from the whole stock extract, matched or not.
	assert.Equal(t, map[string]string{"101": "Matriz", "403": "Sur", "102": "Norte"}, snap.Branches)
}

func TestNormalizeUOMFallback(t *testing.T) {
	snap := Normalize([]ArticleRow{{SKU: "A1", UOMName: "  "}}, nil, nil)
	assert.Equal(t, "PIEZA", snap.Articles["A1"].UOMName)
	assert.Equal(t, int64(1), ResolveUOM(snap.Articles["A1"].UOMName))
}

func TestResolveUOMMapping(t *testing.T) {
	assert.Equal(t, int64(12), ResolveUOM("kilo"))
	assert.Equal(t, int64(10), ResolveUOM(" LITRO "))
	assert.Equal(t, int64(1), ResolveUOM("ALGO RARO"))
}
