package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare array", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"chatter around array", "Here you go:\n[1,2]\nThanks", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestTransformModelOutputToRows(t *testing.T) {
	raw := map[string]interface{}{
		"transactions": []interface{}{
			map[string]interface{}{"date": "2024-01-02", "description": " Tesco ", "amount": -20.5, "category": "Groceries"},
			map[string]interface{}{"date": "2024-01-03", "description": "Salary", "amount": "2,500.00", "category": nil},
			map[string]interface{}{"date": "2024-01-04", "description": "Zero", "amount": 0.0},
			map[string]interface{}{"description": "No date", "amount": 3.0},
			"not an object",
		},
	}

	rows, skipped, err := transformModelOutputToRows(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{Index: 1, Date: "2024-01-02", Description: "Tesco", Amount: -20.5, Category: "Groceries"}, rows[0])
	assert.Equal(t, 2500.0, rows[1].Amount)
	assert.Empty(t, rows[1].Category)
}

func TestTransformModelOutputToRows_BadEnvelope(t *testing.T) {
	_, _, err := transformModelOutputToRows(map[string]interface{}{})
	assert.Error(t, err)

	_, _, err = transformModelOutputToRows(map[string]interface{}{"transactions": "nope"})
	assert.Error(t, err)
}
