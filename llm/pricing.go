package llm

import (
	"strings"
	"sync"
)

// ModelPrice 模型价格（USD / 1K tokens）
type ModelPrice struct {
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	PriceInput  float64 `yaml:"price_input" json:"price_input"`
	PriceOutput float64 `yaml:"price_output" json:"price_output"`
}

// PriceTable 成本估算表。Provider 未返回成本时，网关用它估算本次调用的花费。
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice // key: provider:model
}

// NewPriceTable 创建带默认价格的估算表
func NewPriceTable() *PriceTable {
	t := &PriceTable{prices: make(map[string]ModelPrice)}
	t.Update([]ModelPrice{
		{Provider: "openai", Model: "gpt-4o", PriceInput: 0.0025, PriceOutput: 0.01},
		{Provider: "openai", Model: "gpt-4o-mini", PriceInput: 0.00015, PriceOutput: 0.0006},
		{Provider: "openai", Model: "gpt-4-turbo", PriceInput: 0.01, PriceOutput: 0.03},
		{Provider: "openai", Model: "gpt-3.5-turbo", PriceInput: 0.0005, PriceOutput: 0.0015},
		{Provider: "gemini", Model: "gemini-1.5-pro", PriceInput: 0.00125, PriceOutput: 0.005},
		{Provider: "gemini", Model: "gemini-1.5-flash", PriceInput: 0.000075, PriceOutput: 0.0003},
		{Provider: "gemini", Model: "gemini-2.0-flash", PriceInput: 0.0001, PriceOutput: 0.0004},
	})
	return t
}

// Update 批量覆盖价格（来自配置）
func (t *PriceTable) Update(prices []ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range prices {
		t.prices[p.Provider+":"+p.Model] = p
	}
}

// Lookup 精确匹配 provider:model，否则取同一 provider 下最长的模型名前缀
func (t *PriceTable) Lookup(provider, model string) (ModelPrice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.prices[provider+":"+model]; ok {
		return p, true
	}

	var best ModelPrice
	found := false
	for _, p := range t.prices {
		if p.Provider != provider || !strings.HasPrefix(model, p.Model) {
			continue
		}
		if !found || len(p.Model) > len(best.Model) {
			best, found = p, true
		}
	}
	return best, found
}

// Estimate 计算成本，未知模型返回 0
func (t *PriceTable) Estimate(provider, model string, promptTokens, completionTokens int) float64 {
	p, ok := t.Lookup(provider, model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*p.PriceInput + float64(completionTokens)/1000*p.PriceOutput
}
