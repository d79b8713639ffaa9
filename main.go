package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/liquor-catalog/imgcache/internal/cache"
	"github.com/liquor-catalog/imgcache/internal/config"
	"github.com/liquor-catalog/imgcache/internal/imagecache"
	"github.com/liquor-catalog/imgcache/internal/logging"
	"github.com/liquor-catalog/imgcache/internal/server"
	"github.com/liquor-catalog/imgcache/internal/server/routes"
	"github.com/liquor-catalog/imgcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	// urls 非空时进入一次性解析模式，逐个输出本地引用后退出。
	urls []string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_path"] = cfg.Global.StoragePath
		fields["retention"] = cfg.RetentionWindow().String()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 磁盘缓存 → 图片缓存管理器 →（解析模式 | Fiber server）。
	manager, err := buildManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	if len(opts.urls) > 0 {
		if err := resolveURLs(context.Background(), manager, opts.urls, cfg.Global.WarmConcurrency); err != nil {
			fmt.Fprintf(stdErr, "解析失败: %v\n", err)
			return 1
		}
		return 0
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["retention"] = cfg.RetentionWindow().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, manager, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("imgcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 IMGCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("IMGCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		urls:        fs.Args(),
	}, nil
}

func buildManager(cfg *config.Config, logger *logrus.Logger) (*imagecache.Manager, error) {
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, err
	}
	return imagecache.New(imagecache.Options{
		Store:     store,
		Client:    server.NewDownloadClient(cfg),
		Logger:    logger,
		Namespace: cfg.Global.CacheNamespace,
		IndexFile: cfg.Global.IndexFile,
		Retention: cfg.RetentionWindow(),
		MaxBytes:  cfg.Global.MaxImageBytes,
	})
}

// resolveURLs 以有限并发解析全部地址，并按输入顺序输出 “源地址\t引用”。
// 解析本身从不失败（失败时引用即源地址），因此只有上下文取消会返回错误。
func resolveURLs(ctx context.Context, manager *imagecache.Manager, urls []string, concurrency int) error {
	refs := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sourceURL := range urls {
		i, sourceURL := i, sourceURL
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refs[i] = manager.Resolve(gctx, sourceURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, sourceURL := range urls {
		fmt.Fprintf(stdOut, "%s\t%s\n", sourceURL, refs[i])
	}
	return nil
}

func startHTTPServer(cfg *config.Config, manager *imagecache.Manager, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Cache:      manager,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, manager, logger)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
