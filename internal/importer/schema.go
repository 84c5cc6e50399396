package importer

import (
	"fmt"
	"strings"

	"github.com/fourone/rnc-api/internal/storage"
)

// Column is one position of the registry export.
type Column struct {
	Name string
	Set  func(r *storage.Record, v string)
}

// Schema is the fixed column order of the registry export. Column 0 is the RNC.
var Schema = []Column{
	{"rnc", func(r *storage.Record, v string) { r.RNC = v }},
	{"nombre", func(r *storage.Record, v string) { r.Nombre = v }},
	{"campo_3", func(r *storage.Record, v string) { r.Campo3 = v }},
	{"actividad_economica", func(r *storage.Record, v string) { r.ActividadEconomica = v }},
	{"campo_5", func(r *storage.Record, v string) { r.Campo5 = v }},
	{"campo_6", func(r *storage.Record, v string) { r.Campo6 = v }},
	{"campo_7", func(r *storage.Record, v string) { r.Campo7 = v }},
	{"campo_8", func(r *storage.Record, v string) { r.Campo8 = v }},
	{"fecha_registro", func(r *storage.Record, v string) { r.FechaRegistro = v }},
	{"estado", func(r *storage.Record, v string) { r.Estado = v }},
	{"regimen", func(r *storage.Record, v string) { r.Regimen = v }},
}

// placeholders are cell values exported for missing data.
var placeholders = map[string]struct{}{
	"":     {},
	"nan":  {},
	"NaN":  {},
	"None": {},
	".":    {},
}

// ValidRNC reports whether s is 9 or 11 ASCII digits.
func ValidRNC(s string) bool {
	if len(s) != 9 && len(s) != 11 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Map turns a data row into a record. Rows whose first cell is not a
// well-formed RNC once spaces are removed fail with ErrRowRejected.
func Map(row []string) (storage.Record, error) {
	var rec storage.Record

	var key string
	if len(row) > 0 {
		key = strings.ReplaceAll(strings.TrimSpace(row[0]), " ", "")
	}
	if !ValidRNC(key) {
		return rec, fmt.Errorf("%w: invalid rnc %q", ErrRowRejected, key)
	}
	rec.RNC = key

	for i := 1; i < len(Schema); i++ {
		var v string
		if i < len(row) {
			v = cleanCell(row[i])
		}
		Schema[i].Set(&rec, v)
	}
	return rec, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := placeholders[v]; ok {
		return ""
	}
	return v
}
