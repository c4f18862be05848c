// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多 Agent 文档工作流的步骤执行与编排。

# 概述

一个工作流是有序的步骤列表，每个步骤让一个 Agent 按模板产出文档或结论。
步骤执行器负责单个步骤的完整生命周期：解析模板、组装提示词、
带超时与反馈的重试、识别追问、校验输出、写产物并持久化；
工作流引擎按顺序驱动各步骤，遇到追问暂停，拿到回答后从同一步骤恢复。

# 核心类型

  - StepExecutor: 单步执行状态机，结果以 ExecutionResult 值返回
  - ExecutionResult: Success / ValidationFailure / ElicitationRequired / Failure 四种结果
  - ElicitationCoordinator: 生成面向用户的问题、暂停工作流、注入回答后重新执行步骤
  - Engine: 顺序执行工作流定义，每步完成后写检查点
  - ArtifactSink / FileSink: 已完成文档的落盘
  - WorkflowStreamEmitter: 通过 context 订阅 step_start / step_complete 等事件

# 执行规则

  - 每次尝试与超时赛跑，超时只放弃本次尝试，迟到的结果被丢弃
  - 追问信号优先于输出校验
  - 校验失败的原因作为反馈写入下一次尝试的提示词
  - 步骤产出持久化成功之后才报告成功
  - 同一工作流同时只有一个步骤在执行，不同工作流互不影响

# 子包

  - workflow/template: 资源加载与模板解析
  - workflow/prompt: 提示词组装
  - workflow/validation: 输出校验
  - workflow/persistence: 工作流状态存储（内存 / Redis / 数据库）
*/
package workflow
