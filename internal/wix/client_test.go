package wix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:       srv.URL,
		APIKey:        "key-123",
		SiteID:        "site-456",
		RatePerMinute: 600000, // effectively unlimited in tests
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequestCarriesAuthHeaders(t *testing.T) {
	var gotAuth, gotSite string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSite = r.Header.Get("wix-site-id")
		fmt.Fprint(w, `{"products":[]}`)
	})

	_, err := c.QueryAllProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-123", gotAuth)
	assert.Equal(t, "site-456", gotSite)
}

func TestQueryAllProductsPages(t *testing.T) {
	var offsets []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query struct {
				Paging struct {
					Limit  int `json:"limit"`
					Offset int `json:"offset"`
				} `json:"paging"`
			} `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		offsets = append(offsets, body.Query.Paging.Offset)

		products := make([]Product, 0, productPageSize)
		if body.Query.Paging.Offset == 0 {
			for i := 0; i < productPageSize; i++ {
				products = append(products, Product{ID: fmt.Sprintf("p%d", i), SKU: fmt.Sprintf("S%d", i)})
			}
		} else {
			products = append(products, Product{ID: "last", SKU: "LAST", InventoryItemID: "inv-1"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": products})
	})

	all, err := c.QueryAllProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, productPageSize+1)
	assert.Equal(t, []int{0, productPageSize}, offsets)
	assert.Equal(t, "inv-1", all[productPageSize].InventoryItemID)
}

func TestQueryProductsBySKUBatchesFilter(t *testing.T) {
	var filters []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query struct {
				Filter string `json:"filter"`
			} `json:"query"`
			IncludeVariants bool `json:"includeVariants"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.True(t, body.IncludeVariants)
		filters = append(filters, body.Query.Filter)
		fmt.Fprint(w, `{"products":[{"id":"p1","sku":"S1"}]}`)
	})

	skus := make([]string, productPageSize+5)
	for i := range skus {
		skus[i] = fmt.Sprintf("S%d", i)
	}
	all, err := c.QueryProductsBySKU(context.Background(), skus)
	require.NoError(t, err)
	assert.Len(t, all, 2) // one product per batch reply
	require.Len(t, filters, 2)

	var parsed struct {
		SKU struct {
			In []string `json:"$in"`
		} `json:"sku"`
	}
	require.NoError(t, json.Unmarshal([]byte(filters[0]), &parsed))
	assert.Len(t, parsed.SKU.In, productPageSize)
	require.NoError(t, json.Unmarshal([]byte(filters[1]), &parsed))
	assert.Len(t, parsed.SKU.In, 5)
}

func TestUpdateInventoryPatchesItem(t *testing.T) {
	var method, path string
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})

	err := c.UpdateInventory(context.Background(), InventoryUpdate{
		InventoryItemID: "inv-9",
		TrackQuantity:   true,
		Variants: []Variant{
			{VariantID: "00000000-0000-0000-0000-000000000000", Quantity: 12, InStock: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/stores/v2/inventoryItems/inv-9", path)

	item := body["inventoryItem"].(map[string]any)
	assert.Equal(t, true, item["trackQuantity"])
	variants := item["variants"].([]any)
	require.Len(t, variants, 1)
	v := variants[0].(map[string]any)
	assert.Equal(t, float64(12), v["quantity"])
	assert.Equal(t, true, v["inStock"])
}

func TestNonOKStatusSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"quota exceeded"}`)
	})

	err := c.UpdateInventory(context.Background(), InventoryUpdate{InventoryItemID: "inv-1"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Body, "quota exceeded")
}
