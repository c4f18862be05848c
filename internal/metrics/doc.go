// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 Provider 网关、
步骤执行与状态存储三个维度。

# 核心类型

  - Collector：持有 Counter、Histogram、Gauge 向量指标，
    通过 promauto 注册到默认或指定的 Registry。nil Collector 的
    所有 Record 方法都是空操作。

# 主要能力

  - Provider 指标：调用次数、耗时、token 用量、估算成本、
    按分类统计的失败次数、熔断器状态与用量拒绝次数。
  - 步骤指标：按结果统计的执行次数、尝试次数分布、执行耗时与产物写入。
  - 存储指标：状态存储操作次数与数据库连接池状态。
*/
package metrics
