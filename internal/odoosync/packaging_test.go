package odoosync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilePackagingsCreatesMissing(t *testing.T) {
	fake := newFakeOdoo()
	svc := newTestService(t, fake, &fakeERP{}, fastOpts())

	a := testArticle("A1")
	a.ExtraBarcodes = []string{"111", "222"}
	err := svc.ReconcilePackagings(context.Background(),
		map[string]*NormalizedArticle{"A1": a},
		map[string]int64{"A1": 10})
	require.NoError(t, err)

	recs := fake.records("product.packaging")
	require.Len(t, recs, 2)
	barcodes := map[string]bool{}
	for _, r := range recs {
		barcodes[r.Str("barcode")] = true
		assert.Equal(t, int64(10), r.Ref("product_id"))
		assert.Equal(t, 1, r["qty"])
	}
	assert.True(t, barcodes["111"] && barcodes["222"])
	assert.Equal(t, 2, svc.recorder.Counts().Created)
}

func TestReconcilePackagingsIdempotent(t *testing.T) {
	fake := newFakeOdoo()
	fake.seed("product.packaging", map[string]any{
		"id": int64(50), "product_id": []any{int64(10), "p"}, "barcode": "111", "name": "111",
	})
	svc := newTestService(t, fake, &fakeERP{}, fastOpts())

	a := testArticle("A1")
	a.ExtraBarcodes = []string{"111"}
	err := svc.ReconcilePackagings(context.Background(),
		map[string]*NormalizedArticle{"A1": a},
		map[string]int64{"A1": 10})
	require.NoError(t, err)

	assert.Empty(t, fake.callsTo("product.packaging", "create"))
	assert.Empty(t, fake.callsTo("product.packaging", "unlink"))
}

func TestReconcilePackagingsUnlinksStale(t *testing.T) {
	fake := newFakeOdoo()
	fake.seed("product.packaging", map[string]any{
		"id": int64(50), "product_id": []any{int64(10), "p"}, "barcode": "OLD", "name": "OLD",
	})
	// A packaging on a product this bridge does not manage must survive.
	fake.seed("product.packaging", map[string]any{
		"id": int64(51), "product_id": []any{int64(999), "other"}, "barcode": "FOREIGN", "name": "FOREIGN",
	})
	svc := newTestService(t, fake, &fakeERP{}, fastOpts())

	a := testArticle("A1")
	err := svc.ReconcilePackagings(context.Background(),
		map[string]*NormalizedArticle{"A1": a},
		map[string]int64{"A1": 10})
	require.NoError(t, err)

	recs := fake.records("product.packaging")
	require.Len(t, recs, 1)
	assert.Equal(t, "FOREIGN", recs[0].Str("barcode"))
}

func TestReconcilePackagingsDuplicateExtraAcrossSKUs(t *testing.T) {
	fake := newFakeOdoo()
	svc := newTestService(t, fake, &fakeERP{}, fastOpts())

	a := testArticle("A1")
	a.ExtraBarcodes = []string{"111"}
	b := testArticle("B1")
	b.ExtraBarcodes = []string{"111"}
	err := svc.ReconcilePackagings(context.Background(),
		map[string]*NormalizedArticle{"A1": a, "B1": b},
		map[string]int64{"A1": 10, "B1": 11})
	require.NoError(t, err)

	// Only one article may claim a barcode per run.
	assert.Len(t, fake.records("product.packaging"), 1)
}

func TestReconcilePackagingsDryRun(t *testing.T) {
	fake := newFakeOdoo()
	opts := fastOpts()
	opts.DryRun = true
	svc := newTestService(t, fake, &fakeERP{}, opts)

	a := testArticle("A1")
	a.ExtraBarcodes = []string{"111"}
	err := svc.ReconcilePackagings(context.Background(),
		map[string]*NormalizedArticle{"A1": a},
		map[string]int64{"A1": 10})
	require.NoError(t, err)

	assert.Empty(t, fake.callsTo("product.packaging", "create"))
}
