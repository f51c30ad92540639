package odoosync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/proconsa/erp-bridge/internal/platform/erp"
)

// erpStore implements ERPStore over the MSSQL query port. Every query is
// NOLOCK-hinted: the extract tolerates slightly stale reads in exchange for
// never blocking the point-of-sale system that owns these tables.
type erpStore struct {
	store *erp.Store
}

// NewERPStore builds the extract port over an open MSSQL connection.
func NewERPStore(store *erp.Store) ERPStore {
	return &erpStore{store: store}
}

const articlesQuery = `
SELECT
  a.Articulo_Id,
  a.Articulo_Nombre,
  a.Articulo_Codigo_Interno,
  a.Depto_Id,
  ISNULL(d.Depto_Nombre, 'Sin Definir')         AS Depto_Nombre,
  a.Categoria_Id,
  ISNULL(c.Categoria_Nombre, 'Sin Definir')     AS Categoria_Nombre,
  a.SubCategoria_Id,
  ISNULL(sc.SubCategoria_Nombre, 'Sin Definir') AS SubCategoria_Nombre,
  ISNULL(u.Unidad_Nombre, 'PIEZA')              AS Unidad_Nombre,
  a.Articulo_Precio1,
  a.Articulo_Costo_Actual,
  a.Articulo_Fec_Actualizacion
FROM Articulo a WITH (NOLOCK)
  LEFT JOIN Departamento d WITH (NOLOCK)
    ON d.Emp_Id = a.Emp_Id AND d.Depto_Id = a.Depto_Id
  LEFT JOIN Categoria_Articulo c WITH (NOLOCK)
    ON c.Emp_Id = a.Emp_Id AND c.Categoria_Id = a.Categoria_Id
  LEFT JOIN SubCategoria_Articulo sc WITH (NOLOCK)
    ON sc.Emp_Id = a.Emp_Id AND sc.Categoria_Id = a.Categoria_Id
       AND sc.SubCategoria_Id = a.SubCategoria_Id
  LEFT JOIN Unidad u WITH (NOLOCK)
    ON u.Emp_Id = a.Emp_Id AND u.Unidad_Id = a.Unidad_Id
WHERE a.Emp_Id = @empID
  AND a.Articulo_Activo = 1`

func (e *erpStore) FetchArticles(ctx context.Context) ([]ArticleRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, articlesQuery, namedEmpID(e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch articles: %w", err)
	}
	defer rows.Close()

	var out []ArticleRow
	for rows.Next() {
		var r ArticleRow
		if err := rows.Scan(
			&r.SKU, &r.Name, &r.InternalCode,
			&r.DeptoID, &r.DeptoName,
			&r.CategoriaID, &r.CategoriaName,
			&r.SubCategoriaID, &r.SubCategoriaName,
			&r.UOMName, &r.ListPrice, &r.StandardPrice, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("odoosync: scan article row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stock sums only bodegas flagged available-for-sale. Rows are grouped per
// branch and keyed by the external branch code, the durable identifier the
// rest of the pipeline uses.
const stockQuery = `
SELECT
  s.Suc_Codigo_Externo,
  s.Suc_Nombre,
  axb.Articulo_Id,
  SUM(axb.AxB_Existencia) AS total_existencia
FROM Articulo_x_Bodega axb WITH (NOLOCK)
  INNER JOIN Sucursal s WITH (NOLOCK)
    ON s.Emp_Id = axb.Emp_Id AND s.Suc_Id = axb.Suc_Id AND s.Suc_Activo = 1
  INNER JOIN Bodega b WITH (NOLOCK)
    ON b.Emp_Id = axb.Emp_Id AND b.Suc_Id = axb.Suc_Id
       AND b.Bodega_Id = axb.Bodega_Id AND b.Bodega_Existencia_Disponible = 1
  INNER JOIN Articulo a WITH (NOLOCK)
    ON a.Emp_Id = axb.Emp_Id AND a.Articulo_Id = axb.Articulo_Id AND a.Articulo_Activo = 1
WHERE axb.Emp_Id = @empID
GROUP BY s.Suc_Codigo_Externo, s.Suc_Nombre, axb.Articulo_Id
HAVING SUM(axb.AxB_Existencia) != 0`

func (e *erpStore) FetchStock(ctx context.Context) ([]StockRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, stockQuery, namedEmpID(e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch stock: %w", err)
	}
	defer rows.Close()

	var out []StockRow
	for rows.Next() {
		var r StockRow
		if err := rows.Scan(&r.BranchCode, &r.BranchName, &r.SKU, &r.Qty); err != nil {
			return nil, fmt.Errorf("odoosync: scan stock row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const equivalentsQuery = `
SELECT ae.Articulo_Id, ae.Equivalente_Id
FROM Articulo_Equivalente ae WITH (NOLOCK)
WHERE ae.Emp_Id = @empID`

func (e *erpStore) FetchEquivalents(ctx context.Context) ([]EquivalentRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, equivalentsQuery, namedEmpID(e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch equivalents: %w", err)
	}
	defer rows.Close()

	var out []EquivalentRow
	for rows.Next() {
		var r EquivalentRow
		if err := rows.Scan(&r.SKU, &r.Code); err != nil {
			return nil, fmt.Errorf("odoosync: scan equivalent row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Only the newest principal display image per article counts; metadata only,
// the blobs stay in the ERP until a fingerprint mismatch demands them.
const imageMetaQuery = `
SELECT Articulo_Id, img_size, Fecha
FROM (
  SELECT
    i.Articulo_Id,
    DATALENGTH(i.Imagen) AS img_size,
    i.Fecha,
    ROW_NUMBER() OVER (PARTITION BY i.Articulo_Id ORDER BY i.Fecha DESC) AS rn
  FROM Articulo_Imagen_FS i WITH (NOLOCK)
    INNER JOIN Articulo a WITH (NOLOCK)
      ON a.Emp_Id = i.Emp_Id AND a.Articulo_Id = i.Articulo_Id AND a.Articulo_Activo = 1
  WHERE i.Emp_Id = @empID
    AND i.Tipo_Imagen = 'GRA'
    AND i.Imagen_Principal = 1
) t WHERE rn = 1`

func (e *erpStore) FetchImageMetadata(ctx context.Context) ([]ImageMetaRow, error) {
	rows, err := e.store.DB().QueryContext(ctx, imageMetaQuery, namedEmpID(e.store.EmpID))
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch image metadata: %w", err)
	}
	defer rows.Close()

	var out []ImageMetaRow
	for rows.Next() {
		var r ImageMetaRow
		if err := rows.Scan(&r.SKU, &r.Size, &r.ModifiedAt); err != nil {
			return nil, fmt.Errorf("odoosync: scan image metadata row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (e *erpStore) FetchImageBlobs(ctx context.Context, skus []string) ([]ImageBlobRow, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	params := []any{namedEmpID(e.store.EmpID)}
	placeholders := make([]string, len(skus))
	for i, sku := range skus {
		name := fmt.Sprintf("sku%d", i)
		placeholders[i] = "@" + name
		params = append(params, sql.Named(name, sku))
	}
	query := fmt.Sprintf(`
SELECT Articulo_Id, Imagen
FROM (
  SELECT
    Articulo_Id, Imagen,
    ROW_NUMBER() OVER (PARTITION BY Articulo_Id ORDER BY Fecha DESC) AS rn
  FROM Articulo_Imagen_FS WITH (NOLOCK)
  WHERE Emp_Id = @empID
    AND Tipo_Imagen = 'GRA'
    AND Imagen_Principal = 1
    AND Articulo_Id IN (%s)
) t WHERE rn = 1`, strings.Join(placeholders, ", "))

	rows, err := e.store.DB().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("odoosync: fetch image blobs: %w", err)
	}
	defer rows.Close()

	var out []ImageBlobRow
	for rows.Next() {
		var r ImageBlobRow
		if err := rows.Scan(&r.SKU, &r.Data); err != nil {
			return nil, fmt.Errorf("odoosync: scan image blob row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func namedEmpID(empID int) any {
	return sql.Named("empID", empID)
}
