package postgres

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// renderSchema fixes the artifact embedding column to dimension.
func renderSchema(dimension int) string {
	if dimension <= 0 {
		dimension = 384
	}
	return strings.ReplaceAll(schemaSQL, "{{EMBEDDING_DIMENSION}}", strconv.Itoa(dimension))
}
