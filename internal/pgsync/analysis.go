package pgsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/proconsa/erp-bridge/internal/runlog"
)

// Variation is computed against the snapshot displaced by this run's swap, so
// every percentage reflects exactly one refresh interval. Rows whose rounded
// variation is zero are "micro" noise and only counted, never reported.

const historyInsert = `
INSERT INTO history (sku, precio, sucursal, fecha, variacion)
SELECT
  n.sku,
  n.precio,
  n.sucursal,
  CURRENT_DATE,
  ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1) AS variacion
FROM maestro_precios_sucursal n
INNER JOIN maestro_precios_sucursal_old o
  ON n.sucursal = o.sucursal AND n.sku = o.sku
WHERE n.precio != o.precio
  AND o.precio > 0
  AND ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1) != 0
ON CONFLICT DO NOTHING`

const totalChangesQuery = `
SELECT COUNT(*) AS total
FROM maestro_precios_sucursal n
INNER JOIN maestro_precios_sucursal_old o
  ON n.sucursal = o.sucursal AND n.sku = o.sku
WHERE n.precio != o.precio
  AND o.precio > 0
  AND ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1) != 0`

const microChangesQuery = `
SELECT COUNT(DISTINCT n.sku) AS total_articulos,
       COUNT(*) AS total_registros
FROM maestro_precios_sucursal n
INNER JOIN maestro_precios_sucursal_old o
  ON n.sucursal = o.sucursal AND n.sku = o.sku
WHERE n.precio != o.precio
  AND o.precio > 0
  AND ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1) = 0`

const minorChangesQuery = `
SELECT COUNT(DISTINCT n.sku) AS total
FROM maestro_precios_sucursal n
INNER JOIN maestro_precios_sucursal_old o
  ON n.sucursal = o.sucursal AND n.sku = o.sku
WHERE n.precio != o.precio
  AND o.precio > 0
  AND ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) > 0
  AND ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) < 10`

// significantChangesQuery aggregates >=10% movements per (zone, article,
// priority): one row per article even when all branches in the zone moved.
// Money and percentage columns come back as text to land in decimals intact.
const significantChangesQuery = `
WITH cambios AS (
  SELECT
    n.sucursal,
    n.sku,
    n.nombre_corto,
    n.ubicacion,
    n.precio AS nuevo_precio,
    o.precio AS precio_anterior,
    ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) AS variacion_absoluta,
    CASE
      WHEN n.sucursal IN (101,102,103,104,105,106,108,109,110,112,113) THEN 'Mexicali'
      WHEN n.sucursal IN (401,402,403) THEN 'Hermosillo'
      ELSE 'Otra'
    END AS zona,
    CASE
      WHEN ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) >= 30 THEN 'alta'
      WHEN ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) >= 15 THEN 'media'
      ELSE 'baja'
    END AS prioridad
  FROM maestro_precios_sucursal n
  INNER JOIN maestro_precios_sucursal_old o
    ON n.sucursal = o.sucursal AND n.sku = o.sku
  WHERE n.precio != o.precio
    AND o.precio > 0
    AND ABS(ROUND(((n.precio - o.precio) / o.precio * 100)::numeric, 1)) >= 10
)
SELECT
  zona,
  sku,
  nombre_corto,
  COALESCE(MAX(ubicacion), '') AS ubicacion,
  prioridad,
  COUNT(DISTINCT sucursal) AS num_sucursales,
  STRING_AGG(sucursal::text, ',' ORDER BY sucursal::text) AS sucursales,
  STRING_AGG(sucursal::text || ':' || nuevo_precio::text, ',' ORDER BY sucursal::text) AS sucursales_precios,
  MIN(precio_anterior)::text AS precio_anterior_min,
  MAX(precio_anterior)::text AS precio_anterior_max,
  MIN(nuevo_precio)::text AS nuevo_precio_min,
  MAX(nuevo_precio)::text AS nuevo_precio_max,
  ROUND(AVG(variacion_absoluta), 1)::text AS variacion_promedio,
  MAX(variacion_absoluta)::text AS variacion_maxima,
  COUNT(DISTINCT nuevo_precio) > 1 AS precios_diferentes
FROM cambios
GROUP BY zona, sku, nombre_corto, prioridad
ORDER BY
  CASE prioridad WHEN 'alta' THEN 1 WHEN 'media' THEN 2 ELSE 3 END,
  MAX(variacion_absoluta) DESC,
  zona,
  sku`

// analyze compares the fresh snapshot against the displaced one and buckets
// every movement by size and zone.
func (s *Service) analyze(ctx context.Context, counts *runlog.Counts) (*Analysis, error) {
	a := &Analysis{}

	tag, err := s.db.Exec(ctx, historyInsert)
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	a.HistoryInserted = int(tag.RowsAffected())
	counts.Updated += a.HistoryInserted

	if err := s.db.QueryRow(ctx, totalChangesQuery).Scan(&a.TotalChanges); err != nil {
		return nil, fmt.Errorf("count changes: %w", err)
	}
	if err := s.db.QueryRow(ctx, microChangesQuery).Scan(&a.MicroChanges, &a.MicroChangeRows); err != nil {
		return nil, fmt.Errorf("count micro changes: %w", err)
	}
	if err := s.db.QueryRow(ctx, minorChangesQuery).Scan(&a.MinorChanges); err != nil {
		return nil, fmt.Errorf("count minor changes: %w", err)
	}

	rows, err := s.db.Query(ctx, significantChangesQuery)
	if err != nil {
		return nil, fmt.Errorf("query significant changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		a.All.add(c)
		switch c.Zona {
		case ZoneMexicali:
			a.Mexicali.add(c)
		case ZoneHermosillo:
			a.Hermosillo.add(c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan significant changes: %w", err)
	}

	s.logger.Info("price analysis done",
		slog.Int("total", a.TotalChanges),
		slog.Int("alta", len(a.All.Alta)),
		slog.Int("media", len(a.All.Media)),
		slog.Int("baja", len(a.All.Baja)),
		slog.Int("micro", a.MicroChanges),
	)
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner) (PriceChange, error) {
	var (
		c                                PriceChange
		prevMin, prevMax, newMin, newMax string
		varAvg, varMax                   string
	)
	if err := row.Scan(
		&c.Zona, &c.SKU, &c.NombreCorto, &c.Ubicacion, &c.Prioridad,
		&c.NumSucursales, &c.Sucursales, &c.SucursalesPrecios,
		&prevMin, &prevMax, &newMin, &newMax,
		&varAvg, &varMax, &c.PreciosDiferentes,
	); err != nil {
		return c, fmt.Errorf("scan price change: %w", err)
	}

	var err error
	if c.PrecioAnteriorMin, err = decimal.NewFromString(prevMin); err != nil {
		return c, fmt.Errorf("parse precio_anterior_min: %w", err)
	}
	if c.PrecioAnteriorMax, err = decimal.NewFromString(prevMax); err != nil {
		return c, fmt.Errorf("parse precio_anterior_max: %w", err)
	}
	if c.NuevoPrecioMin, err = decimal.NewFromString(newMin); err != nil {
		return c, fmt.Errorf("parse nuevo_precio_min: %w", err)
	}
	if c.NuevoPrecioMax, err = decimal.NewFromString(newMax); err != nil {
		return c, fmt.Errorf("parse nuevo_precio_max: %w", err)
	}
	if c.VariacionPromedio, err = decimal.NewFromString(varAvg); err != nil {
		return c, fmt.Errorf("parse variacion_promedio: %w", err)
	}
	if c.VariacionMaxima, err = decimal.NewFromString(varMax); err != nil {
		return c, fmt.Errorf("parse variacion_maxima: %w", err)
	}
	return c, nil
}
