package pricesync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proconsa/erp-bridge/internal/platform/erp"
)

// erpStore implements PriceStore over the MSSQL port. The cost comes from the
// per-branch override when the configured branch carries one, falling back to
// the article's global cost otherwise.
type erpStore struct {
	store      *erp.Store
	costBranch string
}

// NewERPStore builds the price extract port over an open MSSQL connection.
// costBranch is the external code of the branch whose cost override wins.
func NewERPStore(store *erp.Store, costBranch string) PriceStore {
	return &erpStore{store: store, costBranch: costBranch}
}

const pricesQuery = `
SELECT
  a.Articulo_Id,
  a.Articulo_Precio1,
  ISNULL(axs.AxS_Costo_Actual, a.Articulo_Costo_Actual) AS costo
FROM Articulo a WITH (NOLOCK)
  LEFT JOIN Articulo_x_Sucursal axs WITH (NOLOCK)
    ON axs.Emp_Id = a.Emp_Id AND axs.Articulo_Id = a.Articulo_Id
       AND axs.Suc_Id = (
         SELECT s.Suc_Id FROM Sucursal s WITH (NOLOCK)
         WHERE s.Emp_Id = a.Emp_Id AND s.Suc_Codigo_Externo = @costBranch
       )
WHERE a.Emp_Id = @empID
  AND a.Articulo_Activo_Venta = 1
  AND a.Articulo_Nombre NOT LIKE '(INS)%'`

func (e *erpStore) FetchPrices(ctx context.Context) ([]PriceRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, pricesQuery,
		sql.Named("empID", e.store.EmpID),
		sql.Named("costBranch", e.costBranch),
	)
	if err != nil {
		return nil, fmt.Errorf("pricesync: fetch prices: %w", err)
	}
	defer rows.Close()

	var out []PriceRow
	for rows.Next() {
		var r PriceRow
		if err := rows.Scan(&r.SKU, &r.Price, &r.Cost); err != nil {
			return nil, fmt.Errorf("pricesync: scan price row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
