package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCIDR string

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Address pool maintenance",
}

var poolSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the address pool with the host addresses of the server subnet",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		n, err := app.SeedPool(cmd.Context(), seedCIDR)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d addresses\n", n)
		return nil
	},
}

func init() {
	poolSeedCmd.Flags().StringVar(&seedCIDR, "cidr", "", "prefix to seed (default: pool.cidr, then the server subnet)")
	poolCmd.AddCommand(poolSeedCmd)
}
