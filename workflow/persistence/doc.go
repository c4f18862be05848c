// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
Package persistence 保存工作流运行状态。

[Store] 定义读写契约，三个实现共享同一套补丁与暂停语义：

  - [MemoryStore]：进程内，测试与单进程运行
  - [RedisStore]：JSON 存于 Redis，集合索引工作流 ID，依赖 internal/cache
  - [GormStore]：workflow_states 表，支持 sqlite / postgres / mysql，写入走带重试的事务

所有写操作返回 nil 即表示已持久化。状态不存在时返回 [ErrNotFound]。
*/
package persistence
