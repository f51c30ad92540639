package odoosync

import (
	"context"
	"time"
)

// ArticleRow is one raw ERP article row.
type ArticleRow struct {
	SKU              string
	Name             string
	InternalCode     string
	DeptoID          int
	DeptoName        string
	CategoriaID      int
	CategoriaName    string
	SubCategoriaID   int
	SubCategoriaName string
	UOMName          string
	ListPrice        float64
	StandardPrice    float64
	UpdatedAt        time.Time
}

// StockRow is one raw (article, branch) stock aggregate.
type StockRow struct {
	SKU        string
	BranchCode string
	BranchName string
	Qty        float64
}

// EquivalentRow maps an article to one registered equivalent barcode.
type EquivalentRow struct {
	SKU  string
	Code string
}

// ImageMetaRow is the metadata-only image fingerprint source: byte length
// plus last-modified timestamp, deliberately not a content checksum.
type ImageMetaRow struct {
	SKU        string
	Size       int64
	ModifiedAt time.Time
}

// ImageBlobRow carries one article's principal image payload.
type ImageBlobRow struct {
	SKU  string
	Data []byte
}

// ERPStore is the read-only extract port against the ERP database.
type ERPStore interface {
	FetchArticles(ctx context.Context) ([]ArticleRow, error)
	FetchStock(ctx context.Context) ([]StockRow, error)
	FetchEquivalents(ctx context.Context) ([]EquivalentRow, error)
	FetchImageMetadata(ctx context.Context) ([]ImageMetaRow, error)
	FetchImageBlobs(ctx context.Context, skus []string) ([]ImageBlobRow, error)
}
