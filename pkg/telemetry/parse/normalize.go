package parse

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/scottpeterman/wirlwind/models"
	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// Normalize applies the inverted normalize map (source field → canonical
// field) to every row. Unmapped fields pass through untouched; a mapped
// source never survives under its original name.
func Normalize(rows []models.Row, remap map[string]string, tr *trace.Trace) []models.Row {
	if len(remap) == 0 || len(rows) == 0 {
		return rows
	}

	var before []string
	if tr != nil {
		before = fieldNames(rows[0])
	}

	out := make([]models.Row, len(rows))
	for i, row := range rows {
		next := make(models.Row, len(row))
		for key, value := range row {
			if canonical, ok := remap[key]; ok {
				next[canonical] = value
			} else {
				next[key] = value
			}
		}
		out[i] = next
	}

	if tr != nil {
		tr.Normalized(before, fieldNames(out[0]), remap)
	}
	return out
}

// Coerce applies schema type rules to every row. A value that fails coercion
// stays a string and logs a warning; one bad row never affects its siblings.
func Coerce(rows []models.Row, schema *models.Schema, logger *slog.Logger, tr *trace.Trace) []models.Row {
	if schema == nil || len(schema.Fields) == 0 || len(rows) == 0 {
		return rows
	}

	changes := map[string]string{}
	out := make([]models.Row, len(rows))
	for i, row := range rows {
		next := make(models.Row, len(row))
		for key, value := range row {
			spec, ok := schema.Fields[key]
			if !ok || value == nil {
				next[key] = value
				continue
			}
			coerced, err := coerceValue(value, spec.Type)
			if err != nil {
				if logger != nil {
					logger.Warn("schema coercion failed",
						"field", key,
						"target", spec.Type,
						"value", fmt.Sprintf("%v", value),
					)
				}
				next[key] = value
				continue
			}
			if fmt.Sprintf("%T", coerced) != fmt.Sprintf("%T", value) {
				changes[key] = fmt.Sprintf("%T→%s", value, spec.Type)
			}
			next[key] = coerced
		}
		out[i] = next
	}

	if tr != nil {
		tr.Coerced(changes)
	}
	return out
}

// coerceValue converts a scalar to the schema type. Numeric strings may carry
// thousands separators; ints accept float syntax and truncate.
func coerceValue(value any, target string) (any, error) {
	s := strings.ReplaceAll(strings.TrimSpace(fmt.Sprintf("%v", value)), ",", "")
	switch target {
	case "int":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case "float":
		return strconv.ParseFloat(s, 64)
	case "bool":
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		default:
			return false, nil
		}
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

func fieldNames(row models.Row) []string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	return names
}
