// Package main 提供 mdnsd 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-mdnsd"
	"github.com/dep2p/go-mdnsd/config"
	"github.com/dep2p/go-mdnsd/internal/util/logger"
	"github.com/dep2p/go-mdnsd/pkg/types"
)

var log = logger.Logger("mdns.cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行做什么（发布、浏览、解析）
//   JSON 配置文件：这台主机的固定配置（主机名、接口、时间参数）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	hostName    = flag.String("host", "", "本机主机名（不含 .local.，默认使用系统主机名）")
	configFile  = flag.String("config", "", "JSON 配置文件路径")
	resolveHost = flag.String("resolve", "", "解析主机名后退出")
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址，如 :9353")
	verbose     = flag.Bool("verbose", false, "输出 fx 生命周期日志")
	printConfig = flag.Bool("print-config", false, "打印合并后的配置并退出")
	showVersion = flag.Bool("version", false, "显示版本信息")

	ifaces  multiFlag
	publish multiFlag
	browse  multiFlag
)

func init() {
	flag.Var(&ifaces, "iface", "启用接口 name[/ipv4|ipv6]，可重复")
	flag.Var(&publish, "publish", "发布实例 instance/_svc._tcp/port[/k=v,...]，可重复")
	flag.Var(&browse, "browse", "浏览服务 _svc._tcp，可重复")
}

// multiFlag 可重复的字符串参数
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(mdnsd.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if *printConfig {
		data, err := config.ToJSON(cfg)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	services, err := parseServices(publish)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := mdnsd.New(buildOptions(cfg)...)
	if err != nil {
		return err
	}
	for _, svc := range services {
		if _, err := d.Publish(svc); err != nil {
			return multierr.Append(err, d.Stop(context.Background()))
		}
	}
	if err := d.Start(ctx); err != nil {
		return multierr.Append(err, d.Stop(context.Background()))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := d.Stop(stopCtx); err != nil {
			log.Warn("停止失败", "error", err)
		}
	}()

	var server *http.Server
	if cfg.Metrics.Addr != "" {
		server = serveMetrics(cfg.Metrics.Addr, d.MetricsHandler())
		defer func() { _ = server.Close() }()
	}

	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = d.WaitReady(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("等待就绪: %w", err)
	}
	fmt.Printf("📦 %s\n", mdnsd.VersionInfo())
	fmt.Printf("主机名: %s\n", types.LocalHostFullName(d.HostName()))

	if *resolveHost != "" {
		return resolve(ctx, d, *resolveHost)
	}

	for _, service := range browse {
		sub, err := d.Subscribe(service, printer(service))
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	fmt.Println("运行中，按 Ctrl+C 退出")
	<-ctx.Done()
	fmt.Println("\n正在退出...")
	return nil
}

// loadConfig 加载配置
//
// 配置优先级：命令行参数 > 配置文件 > 默认值。
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	return config.ValidateAndFix(cfg)
}

func buildOptions(cfg *config.Config) []mdnsd.Option {
	opts := []mdnsd.Option{mdnsd.WithConfig(cfg)}
	if *hostName != "" {
		opts = append(opts, mdnsd.WithHostName(*hostName))
	}
	for _, spec := range ifaces {
		name, family, _ := strings.Cut(spec, "/")
		opts = append(opts, mdnsd.WithInterface(name, family))
	}
	if *verbose {
		opts = append(opts, mdnsd.WithVerboseLifecycle())
	}
	return opts
}

func resolve(ctx context.Context, d *mdnsd.Daemon, host string) error {
	host = strings.TrimSuffix(strings.TrimSuffix(host, "."), ".local")
	r, err := d.ResolveHostName(ctx, host)
	if err != nil {
		return err
	}
	if r.IPv4.IsValid() {
		fmt.Printf("%s\t%s\n", types.LocalHostFullName(host), r.IPv4)
	}
	if r.IPv6.IsValid() {
		fmt.Printf("%s\t%s\n", types.LocalHostFullName(host), r.IPv6)
	}
	return nil
}

// printer 打印浏览结果的订阅方
func printer(service string) mdnsd.SubscriberFuncs {
	show := func(tag string, inst types.ServiceInstance) {
		fmt.Printf("%s %s.%s -> %s:%d %v %v\n", tag, inst.InstanceName, service,
			inst.HostName, inst.Port, inst.Addrs(), inst.Text)
	}
	return mdnsd.SubscriberFuncs{
		OnDiscovered: func(inst types.ServiceInstance) { show("+", inst) },
		OnChanged:    func(inst types.ServiceInstance) { show("~", inst) },
		OnLost: func(service, instance string) {
			fmt.Printf("- %s.%s\n", instance, service)
		},
	}
}

func serveMetrics(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("指标服务退出", "addr", addr, "error", err)
		}
	}()
	log.Info("指标服务已启动", "addr", addr)
	return server
}
