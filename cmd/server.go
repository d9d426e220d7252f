package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initCIDR      string
	initPublicKey string
	initForce     bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Server identity management",
}

var serverInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the server identity and seed its address pool",
	Long: `Provision the server identity and seed its address pool.

A running "wgfleet serve" caches the identity it loaded at first use.
After "server init --force" restart serve so it picks up the new identity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		srv, n, err := app.InitServer(cmd.Context(), initCIDR, initPublicKey, initForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "server %s on %s (%s), pool +%d\n", srv.PublicKey, srv.InterfaceName, srv.ServerIPs, n)
		return nil
	},
}

func init() {
	serverInitCmd.Flags().StringVar(&initCIDR, "cidr", "", "server address with prefix, e.g. 10.0.0.1/24")
	serverInitCmd.Flags().StringVar(&initPublicKey, "public-key", "", "server public key (default: read from the interface)")
	serverInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing server identity (restart a running serve afterwards)")
	_ = serverInitCmd.MarkFlagRequired("cidr")
	serverCmd.AddCommand(serverInitCmd)
}
