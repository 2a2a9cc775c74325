package main

import (
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/agentforge/forge"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "forge",
		Short: "Run agent teams over a project brief and package what they build",
		Long: `forge runs teams of specialist agents over a project brief, collects the
files they produce and packages them as a zip bundle with a manifest.`,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable completion command
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringP("config", "c", "", "config file path (default searches ./config.yaml and ~/.config/agentforge)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newGenerateCmd(),
		newExtractCmd(),
		newExportCmd(),
		newInspectCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}
