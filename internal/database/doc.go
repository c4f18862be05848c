// Copyright (c) DreamTeam Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供工作流状态存储使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。
  - TransactionFunc：事务回调。

# 主要能力

  - Open / Dialector：按 postgres、mysql、sqlite 选择方言，sqlite 为纯 Go 驱动。
  - 健康检查：后台定时探活，并把连接数上报到 metrics.Collector。
  - 事务：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败与 sqlite 忙等瞬时错误退避重试。
*/
package database
