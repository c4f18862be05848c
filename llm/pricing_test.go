package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceTable_Estimate(t *testing.T) {
	table := NewPriceTable()

	tests := []struct {
		name       string
		provider   string
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{"exact model", "openai", "gpt-4o-mini", 1000, 1000, 0.00075},
		{"dated model uses longest prefix", "openai", "gpt-4o-mini-2024-07-18", 1000, 1000, 0.00075},
		{"gemini", "gemini", "gemini-1.5-pro-002", 2000, 0, 0.0025},
		{"unknown provider", "other", "gpt-4o", 1000, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, table.Estimate(tt.provider, tt.model, tt.prompt, tt.completion), 1e-12)
		})
	}
}

func TestPriceTable_Update(t *testing.T) {
	table := NewPriceTable()
	table.Update([]ModelPrice{{Provider: "openai", Model: "gpt-4o", PriceInput: 1, PriceOutput: 2}})

	assert.InDelta(t, 3.0, table.Estimate("openai", "gpt-4o", 1000, 1000), 1e-12)
}
