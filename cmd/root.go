package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/rtparam/cmd/node"
	"github.com/ValentinKolb/rtparam/cmd/param"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rtparam",
		Short: "transactional runtime parameter store",
		Long: fmt.Sprintf(`rtparam (v%s)

A transactional store for runtime parameters. Parameters are global or scoped
to a virtual host and component, and are kept in a local engine (maple, sqlite)
or replicated with RAFT consensus.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rtparam",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rtparam v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(param.ParamCommands)
	RootCmd.AddCommand(node.NodeCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
