// 版权所有 2025 Concierge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供数据库连接池管理能力，服务于知识库检索与
会话记忆的持久化晋升。

# 核心类型

  - PoolManager：连接池管理器，封装 GORM 实例与底层 sql.DB，
    提供 Ping、Stats、事务执行与优雅关闭。
  - PoolConfig：连接池配置，包含最大连接数、生命周期与健康检查间隔。

# 主要能力

  - 连接池调优：MaxIdleConns / MaxOpenConns / ConnMaxLifetime 统一配置。
  - 健康检查：后台定时 Ping，连接异常时通过 zap 日志告警。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败等瞬时错误做指数退避重试。
  - 多驱动：Open 支持 postgres / mysql / sqlite 三种驱动。
*/
package database
