package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/ddbsgo/ddbs/internal/cli/output"
	"github.com/ddbsgo/ddbs/internal/cluster"
)

// RegisterCommand registers a backend URI with the control node.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a backend with the control node",
		ArgsUsage: "URI",
		Action: func(c *cli.Context) error {
			uri := c.Args().First()
			if uri == "" {
				return fmt.Errorf("backend uri required")
			}

			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.Register(c.Context, uri)
			if err != nil {
				return fmt.Errorf("register failed: %w", err)
			}

			fmt.Printf("registered %s as server_id %d\n", uri, id)
			return nil
		},
	}
}

// StatusCommand lists every registered backend's status.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Aliases: []string{"ls"},
		Usage:   "List registered backends and their status",
		Action: func(c *cli.Context) error {
			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			serverMap, err := client.ListServerStatus(c.Context)
			if err != nil {
				return fmt.Errorf("list server status failed: %w", err)
			}

			ids := make([]uint64, 0, len(serverMap))
			for id := range serverMap {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			table := &output.Table{Headers: []string{"SERVER_ID", "URI", "STATUS", "SHARD"}}
			for _, id := range ids {
				meta := serverMap[id]
				table.AddRow(fmt.Sprintf("%d", id), meta.Uri, statusName(meta.Status), shardName(meta.Shard))
			}

			return formatter(c).Format(c.App.Writer, table)
		},
	}
}

// ClusterInitCommand triggers shard assignment and backend bootstrap.
func ClusterInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster-init",
		Usage: "Assign shards and bootstrap the two oldest alive backends",
		Action: func(c *cli.Context) error {
			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.ClusterInit(c.Context); err != nil {
				return fmt.Errorf("cluster init failed: %w", err)
			}

			fmt.Println("cluster initialized")
			return nil
		},
	}
}

func statusName(s cluster.Status) string {
	if s == cluster.Alive {
		return "alive"
	}
	return "dead"
}

func shardName(s cluster.ShardID) string {
	switch s {
	case cluster.Shard1:
		return "1"
	case cluster.Shard2:
		return "2"
	default:
		return "-"
	}
}
