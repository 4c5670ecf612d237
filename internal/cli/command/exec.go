package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// ExecCommand runs a single SQL statement against the cluster.
func ExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run a SQL statement against the cluster",
		ArgsUsage: "STATEMENT",
		Action: func(c *cli.Context) error {
			statement := c.Args().First()
			if statement == "" {
				return fmt.Errorf("sql statement required")
			}

			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Exec(c.Context, statement)
			if err != nil {
				return fmt.Errorf("exec failed: %w", err)
			}

			fmt.Println(result)
			return nil
		},
	}
}

// ArticleCommand fetches one article's text column by aid.
func ArticleCommand() *cli.Command {
	return &cli.Command{
		Name:      "article",
		Usage:     "Fetch an article's text by aid",
		ArgsUsage: "AID",
		Action: func(c *cli.Context) error {
			aid := c.Args().First()
			if aid == "" {
				return fmt.Errorf("aid required")
			}

			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()

			text, err := client.GetArticle(c.Context, aid)
			if err != nil {
				return fmt.Errorf("get article failed: %w", err)
			}

			fmt.Println(text)
			return nil
		},
	}
}
