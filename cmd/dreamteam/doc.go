// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package main 提供 dreamteam 命令行入口。

# 概述

dreamteam 读取 YAML 工作流定义，按顺序让各个 Agent 通过 LLM 网关产出文档，
把每一步的产出与检查点写入状态存储。某一步需要用户补充信息时工作流暂停，
用 resume 提交回答后从同一步骤继续。

# 子命令

  - run：从定义文件启动工作流
  - resume：回答待处理的问题并继续
  - status / list：查看已存储的工作流
  - usage：查看用户（或全局）当天用量
  - version / help

# 装配

配置按 默认值 → YAML → DREAMTEAM_ 环境变量 加载。状态存储可选 memory、redis、
database（gorm，sqlite / postgres / mysql）；用量计数可选 memory 或 redis。
配置 metrics.addr 后，运行期间在该地址暴露 /metrics、/healthz 与 /breakers。
*/
package main
