package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/agentforge/forge"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n", internal.DefaultAppName, internal.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
