// 版权所有 2025-2026 Concierge Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 net/http.Server 的完整生命周期。

NewManager 接收业务 Handler 与 Config 构造 Manager；Start 先绑定
端口再进入后台 serve goroutine，绑定失败同步返回，serve 阶段的
错误经 Errors() 通道异步上报。Shutdown 在 Config.ShutdownTimeout
内排空在途请求；WaitForShutdown 则把 SIGINT/SIGTERM 转成一次
Shutdown 调用，是 serve 命令阻塞的地方。

Concierge 进程同时跑两个 Manager：API 监听器与 metrics 监听器。
Config.Name 会写进每条日志，排障时用来区分是哪个端口出的事。
读写/空闲超时与请求头上限都有保底默认值（见 withDefaults），
配置里留 0 不会得到一个没有超时的服务器。

Addr 返回实际监听地址（端口配 0 时由内核分配），IsRunning
报告当前状态，两者主要服务于测试与健康输出。
*/
package server
