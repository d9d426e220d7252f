package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"wgfleet/config"
	"wgfleet/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wgfleet",
	Short: "wgfleet - WireGuard peer registry and lifecycle service",
	Long: `wgfleet keeps a persistent peer registry consistent with a live WireGuard
interface: it allocates addresses from a pool, rotates keys, renders client
profiles and reports per-peer transfer telemetry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv("CONFIG_FILE", cfgFile)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, $XDG_CONFIG_HOME/wgfleet, /etc/wgfleet)")
	rootCmd.AddCommand(serveCmd, reconcileCmd, poolCmd, serverCmd, versionCmd)
}

// newApp загружает конфиг и поднимает все компоненты.
func newApp() (*server.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		return nil, err
	}
	return app, nil
}
