package odoosync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proconsa/erp-bridge/internal/odoo"
)

// e2eFixtures wires a fake Odoo that mimics the server-side effects the
// pipeline relies on: warehouses get a stock location, templates get their
// single variant.
func e2eFixtures() (*fakeOdoo, *fakeERP) {
	fake := newFakeOdoo()
	fake.onCreate = func(model string, rec odoo.Record) {
		switch model {
		case "stock.warehouse":
			rec["lot_stock_id"] = []any{rec.ID() + 1000, "WH/Stock"}
		case "product.template":
			fake.data["product.product"] = append(fake.data["product.product"], odoo.Record{
				"id":           rec.ID() + 5000,
				"default_code": rec["default_code"],
			})
		}
	}
	erp := &fakeERP{
		articles: []ArticleRow{{
			SKU: "A1", Name: "Tornillo 1/2", InternalCode: "7501000000017",
			DeptoID: 1, DeptoName: "Ferretería",
			CategoriaID: 2, CategoriaName: "Fijación",
			SubCategoriaID: 3, SubCategoriaName: "Tornillos",
			UOMName: "PIEZA", ListPrice: 10.50, StandardPrice: 7.25,
		}},
		stock:       []StockRow{{SKU: "A1", BranchCode: "101", BranchName: "Matriz", Qty: 12}},
		equivalents: []EquivalentRow{{SKU: "A1", Code: "111"}},
	}
	return fake, erp
}

func TestRunConvergesOverSuccessiveRuns(t *testing.T) {
	fake, erp := e2eFixtures()
	ctx := context.Background()

	// First run builds everything from an empty remote.
	first := newTestService(t, fake, erp, fastOpts()).Run(ctx)
	require.False(t, first.Failed())
	assert.Equal(t, 2, first.Counts.Created) // product + extra-barcode packaging
	assert.Equal(t, 1, first.Counts.StockApplied)
	assert.Equal(t, 0, first.Counts.Errors)

	product := fake.records("product.template")
	require.Len(t, product, 1)
	assert.Equal(t, "A1", product[0].Str("default_code"))
	assert.Equal(t, "7501000000017", product[0].Str("barcode"))
	assert.True(t, product[0].Bool("available_in_pos"))
	assert.NotEmpty(t, product[0].IDs("pos_categ_ids"), "creates carry POS placement")

	// Second run over the identical snapshot is a no-op: creates landed
	// with their POS fields, so the diff has nothing left to settle.
	callsBefore := len(fake.calls)
	second := newTestService(t, fake, erp, fastOpts()).Run(ctx)
	require.False(t, second.Failed())
	assert.Equal(t, 0, second.Counts.Created)
	assert.Equal(t, 0, second.Counts.Updated)
	assert.Equal(t, 0, second.Counts.Archived)
	assert.Equal(t, 0, second.Counts.StockApplied)
	for _, c := range fake.calls[callsBefore:] {
		assert.NotContains(t, []string{"create", "write", "unlink"}, c.Method, "unexpected %s", c)
	}
}

func TestRunPhaseSequence(t *testing.T) {
	fake, erp := e2eFixtures()
	summary := newTestService(t, fake, erp, fastOpts()).Run(context.Background())

	var names []string
	for _, p := range summary.Phases {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"extract", "categories", "pos_categories", "warehouses",
		"products", "variants", "packaging", "stock",
	}, names)
}

func TestRunExtractFailureAbortsEverything(t *testing.T) {
	fake, erp := e2eFixtures()
	erp.articlesErr = errBoom

	summary := newTestService(t, fake, erp, fastOpts()).Run(context.Background())
	require.True(t, summary.Failed())
	require.Len(t, summary.Phases, 1)
	assert.Equal(t, "extract", summary.Phases[0].Name)
	assert.Empty(t, fake.calls, "no remote call may happen without an extract")
}

func TestRunCategoryFailureSkipsProductsOnly(t *testing.T) {
	fake, erp := e2eFixtures()
	fake.failNext("product.category", "search_read", 1, errRejected)

	summary := newTestService(t, fake, erp, fastOpts()).Run(context.Background())
	require.True(t, summary.Failed())

	// The catalog diff never ran.
	assert.Empty(t, fake.callsTo("product.template", "search_read"))
	// Warehouses and the rest of the run still executed.
	assert.NotEmpty(t, fake.callsTo("stock.warehouse", "search_read"))
	assert.NotEmpty(t, fake.callsTo("product.product", "search_read"))
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	fake, erp := e2eFixtures()
	opts := fastOpts()
	opts.DryRun = true

	summary := newTestService(t, fake, erp, opts).Run(context.Background())
	require.False(t, summary.Failed())

	for _, c := range fake.calls {
		switch c.Method {
		case "create", "write", "unlink", "action_apply_inventory":
			// Category and warehouse structure is still materialized in dry
			// run (the diff needs real ids); product/stock writes are not.
			if c.Model == "product.category" || c.Model == "pos.category" || c.Model == "stock.warehouse" {
				continue
			}
			t.Fatalf("dry run issued %s.%s", c.Model, c.Method)
		}
	}
	assert.Equal(t, 0, summary.Counts.Created)
	assert.Equal(t, 0, summary.Counts.StockApplied)
}
