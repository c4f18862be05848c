// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package testutil 提供各包测试共用的辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue

# 子包

  - testutil/mocks: MockProvider（llm.Provider）与 ScriptedGateway（按脚本应答的模型网关），
    均支持 Builder 模式、延迟与错误注入
  - testutil/fixtures: 预置 Agent、模板、工作流定义与一份能通过校验的 PRD 文本

# 使用示例

	ctx := testutil.TestContext(t)
	gw := mocks.NewScriptedGateway(mocks.Reply{Content: fixtures.ValidPRD()})
	res, err := gw.Call(ctx, "prompt", llm.CallOptions{})
*/
package testutil
