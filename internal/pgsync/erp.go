package pgsync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proconsa/erp-bridge/internal/platform/erp"
)

// ERPStore is the MSSQL extract port for the Postgres replica.
type ERPStore interface {
	FetchPriceRows(ctx context.Context) ([]PriceRow, error)
	FetchCodes(ctx context.Context) ([]CodeRow, error)
}

type erpStore struct {
	store *erp.Store
}

// NewERPStore builds the extract port over an open MSSQL connection.
func NewERPStore(store *erp.Store) ERPStore {
	return &erpStore{store: store}
}

// Names arrive prefixed with a 3-letter tag in parentheses, "(ABC) NAME".
// The CTE strips the tag into its own column and exposes the clean name.
// Branch ids are translated to the external numbering the replica uses.
const priceRowsQuery = `
WITH ArticulosActivos AS (
    SELECT
        Emp_Id, Articulo_Id, Categoria_Id, SubCategoria_Id, Depto_Id,
        Articulo_Modelo, Articulo_ABC, Unidad_Id,
        CASE
            WHEN LEFT(Articulo_Nombre, 1) = '(' AND CHARINDEX(')', Articulo_Nombre) = 5
            THEN LTRIM(SUBSTRING(Articulo_Nombre, 6, 8000))
            ELSE Articulo_Nombre
        END AS Nombre_Limpio,
        CASE
            WHEN LEFT(Articulo_Nombre_Corto, 1) = '(' AND CHARINDEX(')', Articulo_Nombre_Corto) = 5
            THEN LTRIM(SUBSTRING(Articulo_Nombre_Corto, 6, 8000))
            ELSE Articulo_Nombre_Corto
        END AS Nombre_Corto,
        CASE
            WHEN LEFT(Articulo_Nombre, 1) = '(' AND CHARINDEX(')', Articulo_Nombre) = 5
            THEN SUBSTRING(Articulo_Nombre, 2, 3)
            ELSE NULL
        END AS tag
    FROM dbo.Articulo WITH (NOLOCK)
    WHERE Emp_Id = @empID AND Articulo_Activo_Venta = 1 AND Articulo_Nombre NOT LIKE ('(INS)%')
)
SELECT
    CASE axs.Suc_Id
        WHEN 1 THEN 101 WHEN 2 THEN 102 WHEN 3 THEN 103 WHEN 4 THEN 104
        WHEN 5 THEN 105 WHEN 6 THEN 106 WHEN 7 THEN 108 WHEN 8 THEN 109
        WHEN 9 THEN 110 WHEN 10 THEN 112 WHEN 11 THEN 113 WHEN 16 THEN 401
        WHEN 17 THEN 402 WHEN 18 THEN 403
    END AS sucursal,
    a.Articulo_Id AS sku,
    a.Articulo_ABC AS abc,
    a.tag,
    a.Nombre_Corto AS nombre_corto,
    a.Nombre_Limpio AS nombre,
    a.Articulo_Modelo AS modelo,
    d.Depto_Nombre AS departamento,
    c.Categoria_Nombre AS categoria,
    sc.SubCategoria_Nombre AS subcategoria,
    ROUND(axsc.Precio, 4) AS precio,
    ROUND(axsc.Impuesto, 4) AS impuesto,
    ROUND(axsc.IEPS, 4) AS ieps,
    ROUND(axs.AxS_Costo_Total, 4) AS costo_total,
    axb.AxB_Posicion_A1 AS ubicacion,
    axs.AxS_Fec_Actualizacion AS precio_actualizado,
    ISNULL(axb.AxB_Existencia, 0) AS existencia,
    u.Unidad_Simbolo AS unidad_simbolo,
    u.Unidad_Nombre AS unidad
FROM dbo.Articulo_x_Sucursal AS axs WITH (NOLOCK)
INNER JOIN ArticulosActivos AS a
    ON axs.Emp_Id = a.Emp_Id AND axs.Articulo_Id = a.Articulo_Id
INNER JOIN dbo.Articulo_X_Sucursal_Consulta AS axsc WITH (NOLOCK)
    ON axs.Emp_Id = axsc.Emp_Id AND axs.Suc_Id = axsc.Suc_Id AND axs.Articulo_Id = axsc.Articulo_Id
LEFT JOIN dbo.Articulo_x_Bodega AS axb WITH (NOLOCK)
    ON axs.Emp_Id = axb.Emp_Id AND axs.Suc_Id = axb.Suc_Id
       AND axs.Articulo_Id = axb.Articulo_Id AND axb.Bodega_Id = 1
LEFT JOIN dbo.Departamento AS d WITH (NOLOCK)
    ON a.Emp_Id = d.Emp_Id AND a.Depto_Id = d.Depto_Id
LEFT JOIN dbo.Categoria_Articulo AS c WITH (NOLOCK)
    ON a.Emp_Id = c.Emp_Id AND a.Categoria_Id = c.Categoria_Id
LEFT JOIN dbo.SubCategoria_Articulo AS sc WITH (NOLOCK)
    ON a.Emp_Id = sc.Emp_Id AND a.Categoria_Id = sc.Categoria_Id
       AND a.SubCategoria_Id = sc.SubCategoria_Id
LEFT JOIN dbo.Unidad AS u WITH (NOLOCK)
    ON a.Unidad_Id = u.Unidad_Id
WHERE axs.Emp_Id = @empID
  AND axs.Suc_Id IN (1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 17, 18)`

func (e *erpStore) FetchPriceRows(ctx context.Context) ([]PriceRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, priceRowsQuery, sql.Named("empID", e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("pgsync: fetch price rows: %w", err)
	}
	defer rows.Close()

	var out []PriceRow
	for rows.Next() {
		var r PriceRow
		if err := rows.Scan(
			&r.Sucursal, &r.SKU, &r.ABC, &r.Tag, &r.NombreCorto, &r.Nombre,
			&r.Modelo, &r.Departamento, &r.Categoria, &r.Subcategoria,
			&r.Precio, &r.Impuesto, &r.IEPS, &r.CostoTotal, &r.Ubicacion,
			&r.ActualizadoA, &r.Existencia, &r.UnidadSimb, &r.Unidad,
		); err != nil {
			return nil, fmt.Errorf("pgsync: scan price row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const codesQuery = `
SELECT ae.Articulo_Id AS sku, ae.Equivalente_Id AS codigo
FROM dbo.Articulo_Equivalente AS ae WITH (NOLOCK)
WHERE ae.Emp_Id = @empID`

func (e *erpStore) FetchCodes(ctx context.Context) ([]CodeRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, codesQuery, sql.Named("empID", e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("pgsync: fetch codes: %w", err)
	}
	defer rows.Close()

	var out []CodeRow
	for rows.Next() {
		var r CodeRow
		if err := rows.Scan(&r.SKU, &r.Codigo); err != nil {
			return nil, fmt.Errorf("pgsync: scan code row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
