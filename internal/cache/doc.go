// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的存储访问层，供用量计数与工作流状态存储共用。

# 核心类型

  - Manager：持有 go-redis 客户端与连接池，负责初始化、健康检查与关闭，
    提供 Get/Set/GetJSON/SetJSON/Delete/Exists/Expire 等基础操作。
  - HashIncrement：一次哈希字段原子递增的描述（整数、浮点与过期时间）。
  - Config：地址、密码、键前缀、连接池与健康检查间隔等参数。

# 主要能力

  - IncrementHash 在 MULTI/EXEC 事务中完成 HINCRBY / HINCRBYFLOAT / EXPIRE。
  - SAdd / SMembers 维护工作流 ID 索引。
  - 错误语义：ErrCacheMiss 表示键不存在，ErrClosed 表示管理器已关闭。
*/
package cache
