// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
# 概述

包 gemini 基于 google.golang.org/genai SDK 提供 Gemini Provider。

# 核心结构体

  - GeminiProvider: 调用 Models.GenerateContent，返回首个候选的文本、
    完成原因与用量；SAFETY、RECITATION 等完成原因原样透传，由网关判定为拦截。

# 错误映射

genai.APIError 按 HTTP 状态码经 providers.MapHTTPError 转换为 types.Error，
其余 SDK 错误视为网络错误。
*/
package gemini
