package pgsync

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopspring/decimal"
)

// Reports are written in Spanish for the purchasing team that receives them.

func reportSubject(a *Analysis) string {
	subject := "Sincronización de Precios - Completada"
	switch {
	case len(a.All.Alta) > 0:
		return fmt.Sprintf("%s - %d cambios URGENTES (>30%%)", subject, len(a.All.Alta))
	case len(a.All.Media) > 0:
		return fmt.Sprintf("%s - %d cambios a verificar (>15%%)", subject, len(a.All.Media))
	case len(a.All.Baja) > 0:
		return fmt.Sprintf("%s - %d cambios a revisar (>10%%)", subject, len(a.All.Baja))
	default:
		return fmt.Sprintf("%s - %d cambios menores detectados", subject, a.TotalReportable())
	}
}

func csvFilename() string {
	return fmt.Sprintf("cambios_precios_%s.csv", time.Now().Format("2006-01-02"))
}

func renderTextReport(a *Analysis) string {
	p := message.NewPrinter(language.Spanish)
	var b strings.Builder
	b.WriteString("REPORTE DE ANÁLISIS DE CAMBIOS DE PRECIOS\n")
	b.WriteString("==========================================\n")
	p.Fprintf(&b, "Fecha: %s\n\n", time.Now().Format(time.RFC3339))
	b.WriteString("RESUMEN GENERAL:\n")
	p.Fprintf(&b, "- Total de cambios detectados: %d\n", a.TotalChanges)
	p.Fprintf(&b, "- Prioridad ALTA (>30%%): %d artículos\n", len(a.All.Alta))
	p.Fprintf(&b, "- Prioridad MEDIA (>15%%): %d artículos\n", len(a.All.Media))
	p.Fprintf(&b, "- Prioridad BAJA (>10%%): %d artículos\n", len(a.All.Baja))
	p.Fprintf(&b, "- Cambios menores (0.1%% - 10%%): %d artículos\n", a.MinorChanges)
	p.Fprintf(&b, "- Microcambios (<0.1%%): %d artículos en %d registros\n", a.MicroChanges, a.MicroChangeRows)
	p.Fprintf(&b, "- Registros guardados en history: %d\n\n", a.HistoryInserted)
	b.WriteString("RESUMEN POR ZONA:\n")
	p.Fprintf(&b, "- Mexicali: %d alta, %d media, %d baja\n",
		len(a.Mexicali.Alta), len(a.Mexicali.Media), len(a.Mexicali.Baja))
	p.Fprintf(&b, "- Hermosillo: %d alta, %d media, %d baja\n",
		len(a.Hermosillo.Alta), len(a.Hermosillo.Media), len(a.Hermosillo.Baja))
	return b.String()
}

// renderCSVReport emits a tab-separated sheet, one row per significant change,
// ordered zone by zone and priority by priority.
func renderCSVReport(a *Analysis) string {
	var b strings.Builder
	b.WriteString("Zona\tSKU\tNombre\tUbicacion\tPrecio Anterior\tPrecio Nuevo\tVariacion %\tSucursal(es) con Precio Diferente\n")

	appendZone := func(zone string, changes []PriceChange) {
		for _, c := range changes {
			branchInfo := ""
			if c.PreciosDiferentes {
				branchInfo = c.SucursalesPrecios
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\t%s\t+%s%%\t%s\n",
				zone, c.SKU,
				sanitizeCell(c.NombreCorto), sanitizeCell(c.Ubicacion),
				priceRange(c.PrecioAnteriorMin, c.PrecioAnteriorMax),
				priceRange(c.NuevoPrecioMin, c.NuevoPrecioMax),
				c.VariacionMaxima.StringFixed(1),
				branchInfo,
			)
		}
	}
	appendZone(ZoneMexicali, a.Mexicali.Alta)
	appendZone(ZoneMexicali, a.Mexicali.Media)
	appendZone(ZoneMexicali, a.Mexicali.Baja)
	appendZone(ZoneHermosillo, a.Hermosillo.Alta)
	appendZone(ZoneHermosillo, a.Hermosillo.Media)
	appendZone(ZoneHermosillo, a.Hermosillo.Baja)
	return b.String()
}

func sanitizeCell(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

func priceRange(lo, hi decimal.Decimal) string {
	if lo.Equal(hi) {
		return "$" + lo.StringFixed(4)
	}
	return fmt.Sprintf("$%s - $%s", lo.StringFixed(4), hi.StringFixed(4))
}

var htmlReportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<title>Reporte de Sincronización de Precios</title>
<style>
body { font-family: 'Segoe UI', Tahoma, sans-serif; background: #f5f5f5; padding: 20px; }
.summary { background: #fff; border-radius: 6px; padding: 16px; margin-bottom: 16px; }
.zone { background: #fff; border-radius: 6px; padding: 16px; margin-bottom: 16px; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #ddd; padding: 6px 10px; text-align: left; font-size: 13px; }
.alta { color: #c0392b; font-weight: bold; }
.media { color: #d68910; }
.baja { color: #2471a3; }
.warning { color: #c0392b; font-size: 12px; }
</style>
</head>
<body>
<div class="summary">
<h1>Cambios de Precios</h1>
<p>Fecha: {{.Fecha}}</p>
<p>Total de cambios: {{.Analysis.TotalChanges}} |
Alta: {{len .Analysis.All.Alta}} |
Media: {{len .Analysis.All.Media}} |
Baja: {{len .Analysis.All.Baja}} |
Menores: {{.Analysis.MinorChanges}} |
Micro: {{.Analysis.MicroChanges}}</p>
</div>
{{range .Zones}}{{if .Total}}
<div class="zone">
<h2>{{.Name}}</h2>
<table>
<tr><th>Prioridad</th><th>SKU</th><th>Nombre</th><th>Ubicación</th><th>Precio anterior</th><th>Precio nuevo</th><th>Variación</th></tr>
{{range .Rows}}
<tr>
<td class="{{.Prioridad}}">{{.Prioridad}}</td>
<td>{{.SKU}}</td>
<td>{{.NombreCorto}}</td>
<td>{{.Ubicacion}}</td>
<td>{{.PrecioAnterior}}</td>
<td>{{.PrecioNuevo}}</td>
<td>+{{.Variacion}}%</td>
</tr>
{{if .Aviso}}<tr><td colspan="7" class="warning">Precios diferentes entre sucursales: {{.Aviso}}</td></tr>{{end}}
{{end}}
</table>
</div>
{{end}}{{end}}
</body>
</html>`))

type htmlRow struct {
	Prioridad      string
	SKU            string
	NombreCorto    string
	Ubicacion      string
	PrecioAnterior string
	PrecioNuevo    string
	Variacion      string
	Aviso          string
}

type htmlZone struct {
	Name  string
	Total int
	Rows  []htmlRow
}

func renderHTMLReport(a *Analysis) string {
	buildZone := func(name string, z ZoneChanges) htmlZone {
		zone := htmlZone{Name: name}
		for _, bucket := range [][]PriceChange{z.Alta, z.Media, z.Baja} {
			for _, c := range bucket {
				zone.Rows = append(zone.Rows, htmlRow{
					Prioridad:      c.Prioridad,
					SKU:            c.SKU,
					NombreCorto:    c.NombreCorto,
					Ubicacion:      c.Ubicacion,
					PrecioAnterior: priceRange(c.PrecioAnteriorMin, c.PrecioAnteriorMax),
					PrecioNuevo:    priceRange(c.NuevoPrecioMin, c.NuevoPrecioMax),
					Variacion:      c.VariacionMaxima.StringFixed(1),
					Aviso:          avisoFor(c),
				})
			}
		}
		zone.Total = len(zone.Rows)
		return zone
	}

	data := struct {
		Fecha    string
		Analysis *Analysis
		Zones    []htmlZone
	}{
		Fecha:    time.Now().Format("2006-01-02 15:04"),
		Analysis: a,
		Zones: []htmlZone{
			buildZone(ZoneMexicali, a.Mexicali),
			buildZone(ZoneHermosillo, a.Hermosillo),
		},
	}

	var b strings.Builder
	if err := htmlReportTmpl.Execute(&b, data); err != nil {
		return renderTextReport(a)
	}
	return b.String()
}

func avisoFor(c PriceChange) string {
	if !c.PreciosDiferentes {
		return ""
	}
	return c.SucursalesPrecios
}
