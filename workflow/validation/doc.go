// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

// Package validation 检查模型产出是否满足模板的结构要求：必需章节、最小长度、
// 占位与拒答短语，以及 JSON 模板的必需字段。对话式步骤跳过校验。
package validation
