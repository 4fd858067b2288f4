package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	tcf "github.com/dep2p/go-tcf"
	"github.com/dep2p/go-tcf/pkg/types"
)

var peersCommand = &cli.Command{
	Name:  "peers",
	Usage: "运行发现并列出节点",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "wait",
			Usage: "等待扫描的时间",
			Value: 5 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "attrs",
			Usage: "输出全部属性",
		},
	},
	Action: runPeers,
}

func runPeers(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Agent.Listen = nil
	cfg.Discovery.Enable = true

	core, err := tcf.Start(c.Context, tcf.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	core.ScanNow()
	select {
	case <-time.After(c.Duration("wait")):
	case <-c.Context.Done():
		return c.Context.Err()
	}

	peers, err := core.PeerList(c.Context)
	if err != nil {
		return err
	}
	printPeers(peers, c.Bool("attrs"))
	return nil
}

func printPeers(peers []types.Attributes, all bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if all {
		for _, p := range peers {
			fmt.Fprintln(w, p.ID())
			keys := make([]string, 0, len(p))
			for k := range p {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s\t%s\n", k, p[k])
			}
		}
		return
	}

	fmt.Fprintln(w, "ID\tNAME\tTRANSPORT\tADDRESS")
	for _, p := range peers {
		addr := p[types.AttrPipeName]
		if addr == "" {
			addr = strings.TrimSuffix(p[types.AttrHost]+":"+p[types.AttrPort], ":")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID(), p[types.AttrName], p.Transport(), addr)
	}
}
