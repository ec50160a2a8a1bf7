// 版权所有 2025 Concierge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，承载会话记忆的短期存储与运行时
路由开关的读取。记忆层把会话轮次写成 JSON 值并用 ZSET 按时间戳
建立索引，本包负责这两类键的全部读写路径。

# Manager

Manager 持有 Redis 客户端与连接池参数，生命周期从 NewManager 的
启动探活开始，到 Close 释放连接结束；配置了 HealthCheckInterval
时会在后台定时 Ping 并在异常时告警。

按用途分三组操作：

  - 字符串与 JSON 键值：Get / Set / GetJSON / SetJSON / Delete /
    Exists / Expire，供会话轮次正文与任意带 TTL 的小对象使用。
  - 时间线索引：ZAdd / ZRevRange / ZRemRangeByRank /
    ZRemRangeByScore / ZCard，维护按时间戳排序的轮次索引，
    支持按排名裁剪旧轮次、按分数清理过期成员。
  - 运维辅助：HGet 读取运行时路由开关，Scan 按模式遍历键，
    Ping 探活。

# 错误语义

键不存在统一折叠为 ErrCacheMiss 哨兵错误，调用方用 IsCacheMiss
区分"没有这条缓存"与真正的 Redis 故障；后者原样透传，由上层决定
降级还是报错。
*/
package cache
