// Package directory 实现本地服务目录
//
// 目录记录本机发布的服务实例，供本地进程查询。引擎在实例探测成功、
// 参数变化与撤销时通知目录；目录只观察，不影响线上行为。
//
// # 使用示例
//
//	dir := directory.New()
//	eng, _ := engine.New(cfg, tr, w, engine.WithDirectory(dir))
//	for _, inst := range dir.Instances("_http._tcp") {
//	    fmt.Println(inst.InstanceName, inst.Port)
//	}
package directory
