// Package telemetry 封装 OpenTelemetry SDK 初始化，为网关调用与步骤执行
// 提供 TracerProvider 和 MeterProvider。
// 关闭遥测时使用 noop 实现，不连接任何外部服务。
package telemetry
