// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package types 提供工作流引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、workflow、config
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含分类、HTTP 状态码、Retryable 标记
  - Agent / Persona：只读的 Agent 角色定义与命令表
  - Template / Section：模板及其章节结构
  - StepContext：单次步骤执行的可变上下文
  - ElicitationRequest：需要人工输入时产生的请求
  - WorkflowState：工作流运行状态、检查点与暂停标记
  - Scope：每次调用不可变的请求作用域（用户、工作流、仓库、分支）

# 主要能力

  - Context 传播：WithScope / ScopeFrom / UserID / WorkflowID / WithTraceID
  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable / UserMessage
*/
package types
