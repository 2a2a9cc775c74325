package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact/archive"
)

func newInspectCmd() *cobra.Command {
	var (
		asJSON bool
		runID  string
		last   int
	)
	cmd := &cobra.Command{
		Use:   "inspect [bundle.zip]",
		Short: "Print the manifest of a bundle, or a stored transcript with --run",
		Args: func(cmd *cobra.Command, args []string) error {
			if runID != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if runID != "" {
				store, err := a.transcriptStore(cmd.Context())
				if err != nil {
					return err
				}
				turns, err := store.LoadContext(cmd.Context(), runID, last)
				if err != nil {
					return fmt.Errorf("load transcript: %w", err)
				}
				if len(turns) == 0 {
					return fmt.Errorf("no stored transcript for run %s", runID)
				}
				printTranscript(a.out, runID, turns)
				return nil
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read bundle: %w", err)
			}
			_, manifest, err := archive.Unpack(data, a.cfg.Archive.ManifestName)
			if err != nil {
				return err
			}
			if asJSON {
				encoded, err := manifest.Encode()
				if err != nil {
					return err
				}
				_, err = a.out.Write(encoded)
				return err
			}
			printManifest(a.out, manifest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw manifest")
	cmd.Flags().StringVar(&runID, "run", "", "print the persisted transcript of this run id")
	cmd.Flags().IntVar(&last, "last", 0, "with --run, only the last n messages (0 for all)")
	return cmd
}
