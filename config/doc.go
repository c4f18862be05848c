// Package config 提供 DreamTeam 步骤引擎的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → DREAMTEAM_* 环境变量 的顺序合并，
// 覆盖服务商凭证、熔断/重试/节流/用量参数、步骤执行参数、
// 资源目录、状态存储后端以及日志、遥测和指标。
package config
