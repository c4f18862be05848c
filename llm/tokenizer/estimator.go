package tokenizer

import "unicode/utf8"

// Estimator 按字符数估算 token，区分 CJK 与其他字符
type Estimator struct{}

// NewEstimator 创建估算器
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count 实现 Counter。CJK 约 1.5 字符/token，其余约 4 字符/token。
func (e *Estimator) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}

	estimated := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

// Name 实现 Counter
func (e *Estimator) Name() string {
	return "estimator"
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
