// Package rowmap turns loosely spelled persistence rows into domain values.
//
// Rows written by older clients carry camelCase keys while the database uses
// snake_case. Every lookup here prefers the snake_case key, falls back to the
// camelCase key, then to the default. Nothing past this package sees either
// spelling.
package rowmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// Row is a decoded JSON object or database row keyed by column name
type Row map[string]any

// Parse decodes a JSON object. Numbers are kept as json.Number so decimals
// are not rounded through float64.
func Parse(raw []byte) (Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return row, nil
}

func (r Row) lookup(snake, camel string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r[snake]; ok && v != nil {
		return v, true
	}
	if v, ok := r[camel]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// String returns the value under snake or camel as a string
func (r Row) String(snake, camel, def string) string {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Decimal returns the value under snake or camel as a decimal.
// Strings and numbers are both accepted. Only an absent or null value yields
// def; anything present but unparsable is ErrInvalidInput.
func (r Row) Decimal(snake, camel string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return def, nil
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case decimal.Decimal:
		d = n
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v is not a number", domain.ErrInvalidInput, snake, v)
	}
	return d, nil
}

// decimals reads several decimals from one row and keeps the first error
type decimals struct {
	row Row
	err error
}

func (d *decimals) get(snake, camel string) decimal.Decimal {
	v, err := d.row.Decimal(snake, camel, decimal.Zero)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

// Bool returns the value under snake or camel as a bool
func (r Row) Bool(snake, camel string, def bool) bool {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return def
	}
}

// Time returns the value under snake or camel as a time.
// RFC 3339 timestamps and plain YYYY-MM-DD dates are accepted.
func (r Row) Time(snake, camel string) (time.Time, bool) {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Strings returns the value under snake or camel as a string slice
func (r Row) Strings(snake, camel string) []string {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Object returns the nested object under snake or camel, or nil
func (r Row) Object(snake, camel string) Row {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return nil
	}
	switch o := v.(type) {
	case Row:
		return o
	case map[string]any:
		return Row(o)
	}
	return nil
}

// Objects returns the array of objects under snake or camel
func (r Row) Objects(snake, camel string) []Row {
	v, ok := r.lookup(snake, camel)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Row, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Row(m))
		}
	}
	return out
}
