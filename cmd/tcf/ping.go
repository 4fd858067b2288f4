package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	tcf "github.com/dep2p/go-tcf"
	"github.com/dep2p/go-tcf/internal/core/agent"
	"github.com/dep2p/go-tcf/pkg/types"
)

var pingCommand = &cli.Command{
	Name:      "ping",
	Usage:     "打开到代理的通道，列出远端服务后关闭",
	ArgsUsage: "TRANSPORT:地址",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "打开通道的超时",
			Value: 10 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "no-value-add",
			Usage: "直连目标，不经过 value-add",
		},
	},
	Action: runPing,
}

func runPing(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("需要一个目标，如 TCP:127.0.0.1:1534")
	}
	entry := c.Args().First()
	target, err := agent.ParseListen(entry)
	if err != nil {
		return err
	}
	_, addr, _ := strings.Cut(entry, ":")
	target[types.AttrID] = target.Transport() + ":" + addr
	target[types.AttrTransient] = "true"

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Agent.Listen = nil

	core, err := tcf.Start(c.Context, tcf.WithConfig(cfg), tcf.WithoutDiscovery())
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	var flags types.OpenFlags
	if c.Bool("no-value-add") {
		flags |= types.FlagNoValueAdd
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	start := time.Now()
	ch, err := core.OpenChannel(ctx, target, flags)
	if err != nil {
		return fmt.Errorf("打开通道失败: %w", err)
	}
	defer core.Channels().CloseChannel(ch)

	fmt.Printf("%s 已连接，用时 %s\n", target.ID(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("远端服务: %s\n", strings.Join(ch.RemoteServices(), ", "))
	return nil
}
