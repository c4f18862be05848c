// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
# 概述

包 providers 提供具体 Provider 实现共享的配置与错误映射，子包 openaicompat、
openai、gemini 依赖本包把服务商的失败转换为可被网关归类的 types.Error。

# 核心类型

  - BaseProviderConfig: APIKey、BaseURL、Model、Timeout
  - OpenAIConfig / GeminiConfig: 各服务商配置

# 核心函数

  - MapHTTPError: 按网关分类器的有序规则（状态码加消息短语）映射为类型化错误
  - NetworkError / DecodeError: 请求未送达与响应不可解析
  - ReadErrorMessage: 解析 JSON 错误体，失败时回退原始文本
  - ChooseModel: 请求 > 默认 > 兜底
*/
package providers
