// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
包 server 提供 CLI 长时间运行工作流期间的状态端口。

# 概述

Manager 封装 net/http.Server 的非阻塞启动与优雅关闭；NewStatusMux
挂载 Prometheus 的 /metrics 与聚合健康检查的 /healthz。
任一检查失败时 /healthz 返回 503 与各项结果。

# 核心类型

  - Manager：监听、服务、关闭与异步错误传播
  - Config：监听地址、读写超时、关闭超时
  - Check / HealthReport：健康检查函数与响应体
*/
package server
