package pipeline

import (
	"fmt"
	"strings"
)

// transformModelOutputToRows converts {"transactions": [...]} model output
// into rows. Elements with missing or malformed fields are skipped, matching
// the CSV row policy; only a malformed envelope is an error.
func transformModelOutputToRows(rawOutput map[string]interface{}) ([]Row, int, error) {
	txAny, ok := rawOutput["transactions"]
	if !ok {
		return nil, 0, fmt.Errorf("transformModelOutputToRows: missing 'transactions' key in model output")
	}

	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, 0, fmt.Errorf("transformModelOutputToRows: 'transactions' is %T, want []interface{}", txAny)
	}

	rows := make([]Row, 0, len(txSlice))
	skipped := 0

	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			skipped++
			continue
		}

		date, err := getStringField(obj, "date", true)
		if err != nil {
			skipped++
			continue
		}
		desc, err := getStringField(obj, "description", false)
		if err != nil {
			skipped++
			continue
		}
		amount, err := getFloat64Field(obj, "amount", true)
		if err != nil || amount == 0 {
			skipped++
			continue
		}
		category, err := getOptionalStringField(obj, "category")
		if err != nil {
			skipped++
			continue
		}

		row := Row{
			Index:       i + 1,
			Date:        date,
			Description: strings.TrimSpace(desc),
			Amount:      amount,
		}
		if category != nil {
			row.Category = *category
		}
		rows = append(rows, row)
	}

	return rows, skipped, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case string:
		if f, ok := parseAmount(val); ok {
			return f, nil
		}
		return 0, fmt.Errorf("field %q is not a number: %q", key, val)
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
