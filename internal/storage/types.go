package storage

import "time"

// Record is one taxpayer row from the government registry export.
type Record struct {
	ID                 int64
	RNC                string
	Nombre             string
	Estado             string
	Categoria          string
	ActividadEconomica string
	FechaRegistro      string
	Regimen            string
	Campo3             string
	Campo4             string
	Campo5             string
	Campo6             string
	Campo7             string
	Campo8             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Field is a named record attribute.
type Field struct {
	Name  string
	Value string
}

// Fields returns the non-empty attributes in column order.
// Opaque campo_N values equal to "." are treated as empty.
func (r *Record) Fields() []Field {
	all := []struct {
		name   string
		value  string
		opaque bool
	}{
		{"rnc", r.RNC, false},
		{"nombre", r.Nombre, false},
		{"estado", r.Estado, false},
		{"categoria", r.Categoria, false},
		{"actividad_economica", r.ActividadEconomica, false},
		{"fecha_registro", r.FechaRegistro, false},
		{"regimen", r.Regimen, false},
		{"campo_3", r.Campo3, true},
		{"campo_4", r.Campo4, true},
		{"campo_5", r.Campo5, true},
		{"campo_6", r.Campo6, true},
		{"campo_7", r.Campo7, true},
		{"campo_8", r.Campo8, true},
	}

	fields := make([]Field, 0, len(all))
	for _, f := range all {
		if f.value == "" || (f.opaque && f.value == ".") {
			continue
		}
		fields = append(fields, Field{Name: f.name, Value: f.value})
	}
	return fields
}

// RecordColumns lists the persisted record columns reported by status endpoints.
var RecordColumns = []string{
	"rnc", "nombre", "estado", "categoria", "actividad_economica", "fecha_registro",
	"regimen", "campo_3", "campo_4", "campo_5", "campo_6", "campo_7", "campo_8",
}

// WriteMode selects how a record write treats an existing RNC.
type WriteMode int

const (
	// InsertOnly fails on an existing RNC with ErrDuplicate.
	InsertOnly WriteMode = iota
	// Upsert overwrites every field of an existing RNC except the key.
	Upsert
)

// BatchResult counts what a batch write did.
type BatchResult struct {
	Inserted int
	Updated  int
}

// Token is an API access credential with an hourly request quota.
// Only the SHA-256 hash of the plaintext credential is stored.
type Token struct {
	ID              int64
	TokenHash       string
	Name            string
	RequestsPerHour int
	RequestsUsed    int
	WindowStart     time.Time
	IsActive        bool
	ExpiresAt       *time.Time
	CreatedBy       string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// Import run statuses.
const (
	RunProcessing = "processing"
	RunSuccess    = "success"
	RunError      = "error"
)

// ImportRun is one audit entry for a registry import.
type ImportRun struct {
	ID              int64
	Filename        string
	RecordsImported int
	RecordsUpdated  int
	RecordsNew      int
	Errors          int
	DurationSeconds float64
	AdminUser       string
	Status          string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ImportRunResult is the terminal state written to an import run.
type ImportRunResult struct {
	Status          string
	RecordsImported int
	RecordsUpdated  int
	RecordsNew      int
	Errors          int
	DurationSeconds float64
	ErrorMessage    string
}
