package cmd

import (
	"fmt"
	"os"

	"github.com/fkoehler/cellar/cmd/bench"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cellar",
		Short: "atomic copy-on-write cell store",
		Long: fmt.Sprintf(`cellar (v%s)

An in-memory, lock-free sorted cell store for column-oriented write paths,
providing atomic and isolated batch mutation through copy-on-write snapshots.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cellar",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cellar v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
