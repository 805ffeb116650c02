package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlddu/registry-oauth/internal/repository"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requirePostgres(); err != nil {
				return err
			}
			pool, err := repository.NewPool(cmd.Context(), c.cfg.Database.URL, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			results, err := repository.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s (%s)\n", r.Source.Path, r.Duration)
			}
			return nil
		},
	}
}
