// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
包 llm 提供模型服务商接入网关：错误归类、按 Provider 熔断、同 Provider
重试、按用户限速与用量上限，以及按优先级的 Provider 回退。

# 核心接口

  - [Provider]：单个服务商的一次补全调用，提供 Name / Configured / Invoke。
    实现需返回可区分的错误，便于 [Classify] 归类。

# 核心类型

  - [Gateway]：组合熔断器、重试器、限速器与用量追踪器，按优先级尝试 Provider。
  - [GatewayConfig] / [CallOptions]：网关配置与单次调用参数。
  - [GatewayResult]：成功结果，包含内容、Provider、用量、调用次数与此前的失败。
  - [AggregateError]：所有 Provider 都失败时的聚合错误，Unwrap 返回每个原始错误。
  - [Classification]：错误分类、是否可重试与建议等待时间。
  - [PriceTable]：Provider 未返回成本时的成本估算表。

# 调用流程

 1. 配置了用量追踪器时先检查用户当天上限，超限返回 USAGE_LIMIT，不调用任何 Provider。
 2. 配置了限速器时，整个 Provider 回退过程在该用户的队列中执行。
 3. 每个 Provider 执行 breaker.Call(retry.Do(Invoke))；空内容或策略拦截视为
    CONTENT_REJECTED，直接换下一个 Provider。
 4. 成功后估算缺失的 token 与成本，记录用量与指标。

# 子包

  - circuitbreaker：三态熔断器
  - retry：指数退避重试
  - throttle：按 key 的 FIFO 限速队列
  - usage：按用户/天的用量计数
  - tokenizer：token 计数
  - providers：OpenAI 兼容与 Gemini 实现
*/
package llm
