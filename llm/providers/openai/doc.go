// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package openai 提供 OpenAI Chat Completions 的 Provider 实现。

请求通过嵌入的 openaicompat.Provider 发送，本包补充默认 BaseURL、兜底模型
以及 OpenAI-Organization 请求头。错误经 providers.MapHTTPError 转换为
types.Error，网关据此决定重试或切换到下一个 Provider。
*/
package openai
