package main

import (
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Package a directory of files, skipping excluded paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, err := artifact.LoadDirectory(args[0], artifact.NewExclusions(a.cfg.Artifact.Exclusions...))
			if err != nil {
				return err
			}
			packager, err := a.packager()
			if err != nil {
				return err
			}
			b, err := packager.PackageCandidates(candidates)
			if err != nil {
				return err
			}
			return a.writeBundle(b, out, args[0])
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "bundle path (default <dir>.zip in forge.output_dir)")
	return cmd
}
