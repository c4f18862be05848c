// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package prompt 把 Agent 设定、步骤模板与工作流上下文组装成发给模型的单个提示词。

提示词固定为五段：System、Task、Context、Output Format、Quality Standards。
模板说明中的 {{project_name}}、{{project_type}}、{{user_prompt}} 等变量会被替换，
未知变量保留原样。交互式模板要求模型先提一个问题，而不是直接产出文档；
任何情况下模型都可以用 [[ELICIT: ...]] 标记请求用户补充信息。
*/
package prompt
