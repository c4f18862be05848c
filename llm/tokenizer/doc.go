// Package tokenizer 提供 token 计数：OpenAI 系列模型使用 tiktoken 精确计数，
// 其他模型或编码不可用时使用字符估算，用于 Provider 未返回用量时的用量记账。
package tokenizer
