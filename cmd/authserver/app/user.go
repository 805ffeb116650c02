package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the local projection of end users",
	}
	cmd.AddCommand(newUserAddCmd(c), newUserRevokeCmd(c))
	return cmd
}

func newUserAddCmd(c *cli) *cobra.Command {
	var name, picture string
	cmd := &cobra.Command{
		Use:   "add USER_ID",
		Short: "Add a user so the consent screen can show their name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requirePostgres(); err != nil {
				return err
			}
			rt, err := c.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			user, err := rt.users.CreateUser(cmd.Context(), args[0], name, picture)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added user %s\n", user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&picture, "picture", "", "avatar URL")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUserRevokeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-tokens USER_ID",
		Short: "Revoke every token held by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requirePostgres(); err != nil {
				return err
			}
			rt, err := c.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.oauth.RevokeAllForUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d token(s)\n", n)
			return nil
		},
	}
}
