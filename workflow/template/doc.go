// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package template 负责步骤模板的加载与选择。

# 资源加载

[Catalog] 是只读的 Agent / 模板加载接口。[FileCatalog] 从 YAML 目录读取并按 ID
缓存，并发的首次加载通过 singleflight 合并；[MemoryCatalog] 用于测试与嵌入。
资源不存在返回 [ErrTemplateNotFound] / [ErrAgentNotFound]，与解析错误区分。
[LoadWorkflowFile] 读取工作流定义。

# 模板选择

[Resolver] 按固定顺序尝试检测器：

 1. [ExplicitTemplate]：上下文或命令表中直接给出的模板
 2. [ActionMapping]：动作名精确映射
 3. [PatternMatch]：notes / action 的正则规则，先命中者胜出
 4. [CreatesMapping]：产物文件名映射
 5. [UsingPhrase]：notes 中的 "using <name>" / "with <name>"

第一个命中的检测器决定模板，模板不存在时直接失败，不猜测。
都未命中时，[IsInteractive] 为真则返回进入追问的结果，否则返回 [ErrNoTemplate]。
*/
package template
