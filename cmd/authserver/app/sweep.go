package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlddu/registry-oauth/internal/service"
)

func newSweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired authorization codes and tokens once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requirePostgres(); err != nil {
				return err
			}
			rt, err := c.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := service.NewSweeper(rt.tx, rt.tokens, c.logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d code(s) and %d token(s)\n", res.Codes, res.Tokens)
			return nil
		},
	}
}
