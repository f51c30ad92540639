// Package pgsync replicates ERP prices and stock into Postgres twice an hour
// and reports significant price movements by email. The load goes through a
// staging table and an atomic rename swap, so readers always see either the
// previous snapshot or the new one, never a half-loaded table. The displaced
// snapshot survives one cycle as the _old table and feeds the change analysis.
package pgsync

import (
	"time"

	"github.com/shopspring/decimal"
)

// Postgres table names for the price snapshot rotation.
const (
	stagingTable = "maestro_precios_sucursal_new"
	liveTable    = "maestro_precios_sucursal"
	oldTable     = "maestro_precios_sucursal_old"
)

// pgColumns is the column order used for the bulk load.
var pgColumns = []string{
	"sucursal", "sku", "abc", "tag", "nombre_corto", "nombre", "modelo",
	"departamento", "categoria", "subcategoria", "precio", "impuesto",
	"ieps", "costo_total", "ubicacion", "precio_actualizado", "existencia",
	"unidad_simbolo", "unidad",
}

// PriceRow is one (article, branch) snapshot row from the ERP. Pointer fields
// are nullable in the source and load as NULL.
type PriceRow struct {
	Sucursal     int
	SKU          string
	ABC          string
	Tag          *string
	NombreCorto  string
	Nombre       string
	Modelo       string
	Departamento *string
	Categoria    *string
	Subcategoria *string
	Precio       float64
	Impuesto     float64
	IEPS         float64
	CostoTotal   float64
	Ubicacion    *string
	ActualizadoA time.Time
	Existencia   float64
	UnidadSimb   *string
	Unidad       *string
}

func (r *PriceRow) values() []any {
	return []any{
		r.Sucursal, r.SKU, r.ABC, r.Tag, r.NombreCorto, r.Nombre, r.Modelo,
		r.Departamento, r.Categoria, r.Subcategoria, r.Precio, r.Impuesto,
		r.IEPS, r.CostoTotal, r.Ubicacion, r.ActualizadoA, r.Existencia,
		r.UnidadSimb, r.Unidad,
	}
}

// CodeRow maps an article to one of its alternate barcodes.
type CodeRow struct {
	SKU    string
	Codigo string
}

// Priority buckets for significant changes (variation >= 10%).
const (
	PriorityHigh   = "alta"  // >= 30%
	PriorityMedium = "media" // >= 15%
	PriorityLow    = "baja"  // >= 10%
)

// Zone names derived from branch number ranges.
const (
	ZoneMexicali   = "Mexicali"
	ZoneHermosillo = "Hermosillo"
)

// PriceChange is one article's aggregated movement within a zone. Money and
// percentage fields stay decimal end to end so reports render exactly what
// Postgres computed.
type PriceChange struct {
	Zona              string
	SKU               string
	NombreCorto       string
	Ubicacion         string
	Prioridad         string
	NumSucursales     int
	Sucursales        string
	SucursalesPrecios string
	PrecioAnteriorMin decimal.Decimal
	PrecioAnteriorMax decimal.Decimal
	NuevoPrecioMin    decimal.Decimal
	NuevoPrecioMax    decimal.Decimal
	VariacionPromedio decimal.Decimal
	VariacionMaxima   decimal.Decimal
	PreciosDiferentes bool
}

// ZoneChanges groups one zone's significant changes by priority.
type ZoneChanges struct {
	Alta  []PriceChange
	Media []PriceChange
	Baja  []PriceChange
}

func (z *ZoneChanges) add(c PriceChange) {
	switch c.Prioridad {
	case PriorityHigh:
		z.Alta = append(z.Alta, c)
	case PriorityMedium:
		z.Media = append(z.Media, c)
	case PriorityLow:
		z.Baja = append(z.Baja, c)
	}
}

// Analysis is the outcome of one post-swap price comparison.
type Analysis struct {
	TotalChanges    int
	MicroChanges    int // articles that moved < 0.1%
	MicroChangeRows int
	MinorChanges    int // articles that moved 0.1% - 10%
	HistoryInserted int
	All             ZoneChanges
	Mexicali        ZoneChanges
	Hermosillo      ZoneChanges
}

// Significant reports whether any change crossed the 10% threshold.
func (a *Analysis) Significant() bool {
	return len(a.All.Alta)+len(a.All.Media)+len(a.All.Baja) > 0
}

// TotalReportable counts every article worth mentioning in the report.
func (a *Analysis) TotalReportable() int {
	return len(a.All.Alta) + len(a.All.Media) + len(a.All.Baja) +
		a.MicroChanges + a.MinorChanges
}
