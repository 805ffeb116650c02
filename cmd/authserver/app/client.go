package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlddu/registry-oauth/internal/crypto"
	"github.com/dlddu/registry-oauth/internal/scope"
	"github.com/dlddu/registry-oauth/internal/service"
)

func newClientCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered client applications",
	}
	cmd.AddCommand(newClientAddCmd(c))
	return cmd
}

func newClientAddCmd(c *cli) *cobra.Command {
	var (
		p            service.CreateClientParams
		permissions  string
		confidential bool
	)
	cmd := &cobra.Command{
		Use:   "add CLIENT_ID",
		Short: "Register a client application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requirePostgres(); err != nil {
				return err
			}
			mask, err := scope.Parse(permissions)
			if err != nil {
				return fmt.Errorf("--permissions: %w", err)
			}
			p.ClientID = args[0]
			p.Permissions = mask
			if confidential && p.Secret == "" {
				if p.Secret, err = crypto.GenerateRandomString(32); err != nil {
					return err
				}
			}

			rt, err := c.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			client, err := rt.clients.CreateClient(cmd.Context(), p)
			if err != nil {
				return err
			}

			out := map[string]any{
				"client_id":     client.ClientID,
				"name":          client.Name,
				"redirect_uris": client.RedirectURIs,
				"permissions":   client.Permissions,
				"trusted":       client.Trusted,
				"quota":         client.Quota,
			}
			if p.Secret != "" {
				out["client_secret"] = p.Secret
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.Name, "name", "", "display name shown on the consent screen")
	f.StringVar(&p.Icon, "icon", "", "icon URL")
	f.StringVar(&p.Description, "description", "", "description shown on the consent screen")
	f.StringSliceVar(&p.RedirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable)")
	f.StringVar(&permissions, "permissions", "identity:read", "permissions the client may request, as names or a decimal mask")
	f.BoolVar(&p.Trusted, "trusted", false, "mark the client as first-party")
	f.IntVar(&p.Quota, "quota", 100, "maximum number of users holding a live token")
	f.StringVar(&p.Secret, "secret", "", "client secret; implies a confidential client")
	f.BoolVar(&confidential, "confidential", false, "generate a client secret when --secret is not given")
	return cmd
}
