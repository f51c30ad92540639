package wixsync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Queryer is the read slice of pgx the store needs. *pgxpool.Pool satisfies it.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store aggregates branch stock from the price replica.
type Store struct {
	db Queryer
}

// NewStore wraps a Postgres pool.
func NewStore(db Queryer) *Store {
	return &Store{db: db}
}

// Branch stock sums only the zone selected by prefix. Newest changes first so
// the caller can take row zero as the next watermark.
const changedStockQuery = `
SELECT
  sku,
  SUM(existencia::numeric)::float8 AS total_stock,
  MAX(precio)::float8 AS precio,
  MAX(precio_actualizado) AS last_updated
FROM maestro_precios_sucursal
WHERE precio_actualizado > $1::timestamptz
  AND sucursal::text LIKE $2
  AND sku = ANY($3)
GROUP BY sku
ORDER BY MAX(precio_actualizado) DESC`

// FetchChangedStock returns per-SKU stock totals for SKUs whose price rows
// changed after since, restricted to branches matching branchPrefix.
func (s *Store) FetchChangedStock(ctx context.Context, since, branchPrefix string, skus []string) ([]StockSum, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, changedStockQuery, since, branchPrefix+"%", skus)
	if err != nil {
		return nil, fmt.Errorf("wixsync: query changed stock: %w", err)
	}
	defer rows.Close()

	var out []StockSum
	for rows.Next() {
		var r StockSum
		if err := rows.Scan(&r.SKU, &r.TotalStock, &r.Precio, &r.LastUpdated); err != nil {
			return nil, fmt.Errorf("wixsync: scan stock row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
