package sqlite

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInteger:
		return "INTEGER"
	case domain.KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func createTableSQL(t domain.Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = quoteIdent(c.Name) + " " + sqlType(c.Kind)
	}
	return "CREATE TABLE " + quoteIdent(t.Name) + " (" + strings.Join(defs, ", ") + ")"
}

func insertSQL(t domain.Table) string {
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return "INSERT INTO " + quoteIdent(t.Name) + " (" + strings.Join(names, ", ") +
		") VALUES (" + strings.Join(marks, ", ") + ")"
}

func rowValues(cols []domain.Column, r domain.FeatureRecord) ([]any, error) {
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := storeValue(c.Kind, r.Value(c.Name))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// storeValue converts a decoded attribute into the driver value for a column
// of kind k. Null stays null in every column.
func storeValue(k domain.ColumnKind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case domain.KindInteger:
		return integerValue(v)
	case domain.KindReal:
		return realValue(v)
	default:
		return textValue(v)
	}
}

func integerValue(v any) (any, error) {
	switch n := v.(type) {
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, n.String())
		}
		return i, nil
	default:
		return nil, fmt.Errorf("%w: %T in integer column", ErrTypeMismatch, v)
	}
}

func realValue(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, nil
		}
		return n, nil
	case bool:
		if n {
			return 1.0, nil
		}
		return 0.0, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, n.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %T in real column", ErrTypeMismatch, v)
	}
}

func textValue(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case json.Number:
		return s.String(), nil
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %T in text column", ErrTypeMismatch, v)
		}
		return string(b), nil
	}
}
