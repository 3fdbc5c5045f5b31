package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/datamantri/pkg/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of datamantri.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get()
		if jsonOutput() {
			return printJSON(info)
		}
		fmt.Println(info.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
