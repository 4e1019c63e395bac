// Package mdnsd 提供多播 DNS（RFC 6762）与 DNS 服务发现（RFC 6763）守护进程
//
// Daemon 在本地链路上声明主机名、发布服务实例、浏览服务并解析主机名。
// 协议行为由单线程事件循环驱动的引擎实现，网络收发、接口枚举、本地服务目录
// 与指标都是可替换的协作方，通过 go.uber.org/fx 组装。
//
// # 快速开始
//
//	d, err := mdnsd.Start(ctx, mdnsd.WithHostName("myhost"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop(context.Background())
//
//	// 发布服务
//	pub, err := d.Publish(mdnsd.Service{
//	    Service:  "_http._tcp",
//	    Instance: "My Web Server",
//	    Port:     8080,
//	    Text:     []string{"path=/"},
//	})
//
//	// 浏览服务
//	sub, err := d.Subscribe("_http._tcp", mdnsd.SubscriberFuncs{
//	    OnDiscovered: func(inst types.ServiceInstance) { fmt.Println(inst.InstanceName) },
//	})
//	defer sub.Unsubscribe()
//
//	// 解析主机名
//	addrs, err := d.ResolveHostName(ctx, "otherhost")
//
// # 生命周期
//
// New 只组装组件；Start 打开套接字、开始监视接口并探测主机名；
// 引擎进入 Active 后 WaitReady 返回。Stop 为已发布实例发送 goodbye，
// 之后守护进程不能再次启动。
//
// # 冲突
//
// 主机名冲突时自动追加数字后缀重新探测（myhost → myhost2），
// HostName 返回当前使用的名称。实例名冲突通过 Publication.WaitProbed 报告。
//
// # 文件组织
//
//   - mdnsd.go: Daemon 与发布、订阅、解析 API
//   - options.go: 配置选项
//   - fx.go: 模块组装
//   - errors.go: 公共错误
package mdnsd
