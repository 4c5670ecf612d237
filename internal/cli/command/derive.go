package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
)

// GenerateBeReadCommand rebuilds the be_read derived table.
func GenerateBeReadCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-be-read",
		Usage: "Rebuild the be_read derived table",
		Action: func(c *cli.Context) error {
			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.GenerateBeReadTable(c.Context); err != nil {
				return fmt.Errorf("generate be_read failed: %w", err)
			}

			fmt.Println("be_read rebuilt")
			return nil
		},
	}
}

// GeneratePopularCommand rebuilds one granularity of the popular_rank
// derived table (0=Daily, 1=Weekly, 2=Monthly).
func GeneratePopularCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate-popular",
		Usage:     "Rebuild one granularity of the popular_rank derived table",
		ArgsUsage: "GRANULARITY",
		Action: func(c *cli.Context) error {
			arg := c.Args().First()
			if arg == "" {
				return fmt.Errorf("granularity required (0=Daily, 1=Weekly, 2=Monthly)")
			}
			granularity, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("granularity must be an integer: %w", err)
			}

			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.GeneratePopularTable(c.Context, granularity); err != nil {
				return fmt.Errorf("generate popular_rank failed: %w", err)
			}

			fmt.Println("popular_rank rebuilt")
			return nil
		},
	}
}
