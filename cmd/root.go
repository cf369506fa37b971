// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tcpflow",
	Short: "tcpflow - Passive TCP stream reassembly",
	Long: `tcpflow reassembles TCP streams from a passive tap.
It feeds captured packets (from a pcap file or a live interface) into the
reassembly engine and writes each connection's two directions as contiguous
byte streams, with unrecoverable holes marked in-line as "[N bytes missing]".`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional)")

	rootCmd.AddCommand(dumpCmd)
}
