// Package wix is a minimal client for the Wix Stores REST API, covering the
// two calls the bridge needs: listing catalog products and patching inventory
// levels. All requests share one token-bucket limiter sized to Wix's
// published per-minute quota, so bursts queue instead of getting 429s.
package wix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const productPageSize = 100

// Config carries credentials and tuning for the client.
type Config struct {
	BaseURL       string
	APIKey        string
	SiteID        string
	RatePerMinute int
	Timeout       time.Duration
}

// Product is one catalog entry. InventoryItemID links it to the inventory
// record that stock updates patch.
type Product struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SKU             string `json:"sku"`
	InventoryItemID string `json:"inventoryItemId"`
}

// Variant addresses one sellable variant inside an inventory item.
type Variant struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
	InStock   bool   `json:"inStock"`
}

// InventoryUpdate is one PATCH against an inventory item.
type InventoryUpdate struct {
	InventoryItemID string
	TrackQuantity   bool
	Variants        []Variant
}

// APIError is a non-2xx reply from Wix.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wix: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the Wix Stores API.
type Client struct {
	baseURL string
	apiKey  string
	siteID  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds a client. RatePerMinute defaults to 180, Wix's documented
// quota for inventory writes.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 180
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		siteID:  cfg.SiteID,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute/10+1),
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wix: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("wix: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("wix-site-id", c.siteID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wix: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("wix: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

type productQuery struct {
	Query           productQueryBody `json:"query"`
	IncludeVariants bool             `json:"includeVariants,omitempty"`
}

type productQueryBody struct {
	Filter string      `json:"filter,omitempty"`
	Paging queryPaging `json:"paging"`
}

type queryPaging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset,omitempty"`
}

type productQueryResponse struct {
	Products []Product `json:"products"`
}

// QueryAllProducts pages through the whole catalog.
func (c *Client) QueryAllProducts(ctx context.Context) ([]Product, error) {
	var all []Product
	offset := 0
	for {
		var resp productQueryResponse
		body := productQuery{Query: productQueryBody{Paging: queryPaging{Limit: productPageSize, Offset: offset}}}
		if err := c.do(ctx, http.MethodPost, "/stores/v1/products/query", body, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Products...)
		if len(resp.Products) < productPageSize {
			return all, nil
		}
		offset += productPageSize
	}
}

// QueryProductsBySKU looks up catalog entries for the given SKUs, batching the
// filter to stay inside the API's filter-size limit.
func (c *Client) QueryProductsBySKU(ctx context.Context, skus []string) ([]Product, error) {
	var all []Product
	for start := 0; start < len(skus); start += productPageSize {
		end := min(start+productPageSize, len(skus))
		filter, err := json.Marshal(map[string]any{"sku": map[string]any{"$in": skus[start:end]}})
		if err != nil {
			return nil, fmt.Errorf("wix: marshal sku filter: %w", err)
		}
		var resp productQueryResponse
		body := productQuery{
			Query:           productQueryBody{Filter: string(filter), Paging: queryPaging{Limit: productPageSize}},
			IncludeVariants: true,
		}
		if err := c.do(ctx, http.MethodPost, "/stores/v1/products/query", body, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Products...)
	}
	return all, nil
}

// UpdateInventory patches quantities on one inventory item.
func (c *Client) UpdateInventory(ctx context.Context, update InventoryUpdate) error {
	body := map[string]any{
		"inventoryItem": map[string]any{
			"trackQuantity": update.TrackQuantity,
			"variants":      update.Variants,
		},
	}
	path := "/stores/v2/inventoryItems/" + update.InventoryItemID
	return c.do(ctx, http.MethodPatch, path, body, nil)
}
