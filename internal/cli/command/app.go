// Package command provides CLI command definitions for ddbsctl, the
// control-node administration tool.
package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ddbsgo/ddbs/internal/cli/output"
	"github.com/ddbsgo/ddbs/internal/infra/buildinfo"
	"github.com/ddbsgo/ddbs/internal/rpcwire"
)

// App creates the ddbsctl CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "ddbsctl",
		Usage:   "ddbs control-node administration tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			RegisterCommand(),
			StatusCommand(),
			ClusterInitCommand(),
			GenerateBeReadCommand(),
			GeneratePopularCommand(),
			ExecCommand(),
			ArticleCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "control node RPC address",
			EnvVars: []string{"DDBSCTL_ADDR"},
			Value:   "127.0.0.1:7700",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json",
			Value:   "table",
		},
	}
}

// dial opens a ControlClient to the address given by the --addr flag.
func dial(c *cli.Context) (*rpcwire.ControlClient, error) {
	client, err := rpcwire.DialControl(c.Context, c.String("addr"))
	if err != nil {
		return nil, fmt.Errorf("dial control node: %w", err)
	}
	return client, nil
}

func formatter(c *cli.Context) output.Formatter {
	return output.New(output.Format(c.String("output")))
}
