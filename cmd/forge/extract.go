package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	"github.com/ZanzyTHEbar/agentforge/forge/pipeline"
)

func newExtractCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract <transcript-file>",
		Short: "Package the file blocks found in a saved transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			packager, err := a.packager()
			if err != nil {
				return err
			}
			b, err := packager.PackageCandidates(artifact.Extract(string(data)))
			if err != nil {
				return err
			}
			return a.writeBundle(b, out, args[0])
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "bundle path (default <input>.zip in forge.output_dir)")
	return cmd
}

// writeBundle writes b to out, or next to the configured output dir named
// after input when out is empty.
func (a *app) writeBundle(b *pipeline.Bundle, out, input string) error {
	dir, name := a.cfg.Forge.OutputDir, filepath.Base(filepath.Clean(input))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if out != "" {
		dir, name = filepath.Dir(out), strings.TrimSuffix(filepath.Base(out), ".zip")
	}
	path, err := pipeline.WriteBundle(dir, name, b)
	if err != nil {
		return err
	}
	printBundle(a.out, b, path)
	return nil
}
