// Package tlsutil 提供出站连接的 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 供 OpenAI 兼容 Provider 的 HTTP 客户端与 Redis 连接共用。
package tlsutil
