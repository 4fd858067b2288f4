package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	tcf "github.com/dep2p/go-tcf"
)

var agentCommand = &cli.Command{
	Name:  "agent",
	Usage: "作为 TCF 代理提供 Locator 服务",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "listen",
			Usage: "监听地址 TRANSPORT:地址，可重复",
			Value: cli.NewStringSlice("TCP::1534"),
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "代理 ID，默认随机",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "宣告的代理名称",
		},
		&cli.BoolFlag{
			Name:  "advertise",
			Usage: "经 mDNS 宣告监听点",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "no-discovery",
			Usage: "不扫描其他代理",
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "Prometheus 指标监听地址，如 127.0.0.1:9100",
		},
	},
	Action: runAgent,
}

func runAgent(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Agent.Listen = c.StringSlice("listen")
	cfg.Agent.Advertise = c.Bool("advertise")
	cfg.Agent.Redirect = true
	if c.IsSet("id") {
		cfg.Agent.ID = c.String("id")
	}
	if c.IsSet("name") {
		cfg.Agent.Name = c.String("name")
	}
	if addr := c.String("metrics"); addr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.Listen = addr
	}

	opts := []tcf.Option{tcf.WithConfig(cfg)}
	if c.Bool("no-discovery") {
		opts = append(opts, tcf.WithoutDiscovery())
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := tcf.Start(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Warn("关闭失败", "error", err)
		}
	}()

	fmt.Printf("代理 %s 已启动\n", core.AgentID())
	for _, p := range core.LocalPeers() {
		fmt.Printf("  %s\n", p.ID())
	}

	<-ctx.Done()
	fmt.Println("正在关闭...")
	return nil
}
