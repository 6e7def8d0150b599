package main

import (
	"os"

	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.L.Fatal(err)
	}
}

// v holds the configuration of the running command once
// PersistentPreRunE has loaded it.
var v *viper.Viper

var (
	mainCmd = &cobra.Command{
		Use:          os.Args[0],
		Short:        "Run the address space manager",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			if err := log.Configure(cfg.GetString(keyLogLevel), cfg.GetString(keyLogFormat), os.Stderr); err != nil {
				return err
			}
			v = cfg
			return nil
		},
	}
)

func init() {
	mainCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
	mainCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")
	mainCmd.PersistentFlags().String("log-format", "text", "Log format (options \"text\", \"json\")")
	mainCmd.PersistentFlags().StringP("state-file", "d", "/var/lib/addrspace/state.db", "State file")

	mainCmd.AddCommand(
		serveCmd,
		loadCmd,
		usageCmd,
		lookupCmd,
		exportCmd,
		version.Cmd,
	)
}
