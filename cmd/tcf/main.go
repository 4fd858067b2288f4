// Package main 提供 tcf 命令行入口
//
//	tcf agent --listen TCP::1534 --metrics 127.0.0.1:9100
//	tcf peers --wait 5s
//	tcf ping TCP:192.168.1.10:1534
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	tcf "github.com/dep2p/go-tcf"
	"github.com/dep2p/go-tcf/config"
	"github.com/dep2p/go-tcf/pkg/lib/log"
)

var logger = log.Logger("tcf/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 公共参数
// ═══════════════════════════════════════════════════════════════════════════

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "配置文件路径（.json/.yaml）",
		EnvVars: []string{"TCF_CONFIG"},
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Usage: "数据目录，空为内存模式",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "日志级别，如 info,core/channel=debug",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "日志格式 text 或 json",
	}
)

func main() {
	app := &cli.App{
		Name:    "tcf",
		Usage:   "Target Communication Framework 运行时",
		Version: tcf.VersionInfo(),
		Flags:   []cli.Flag{configFlag, dataDirFlag, logLevelFlag, logFormatFlag},
		Commands: []*cli.Command{
			agentCommand,
			peersCommand,
			pingCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 读取 --config，命令行参数随后覆盖
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.NewConfig()
	if path := c.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(dataDirFlag.Name) {
		cfg.Storage.DataDir = c.String(dataDirFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if c.IsSet(logFormatFlag.Name) {
		cfg.Log.Format = c.String(logFormatFlag.Name)
	}
	return cfg, nil
}
