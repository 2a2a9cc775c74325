package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/intake"
	"github.com/ZanzyTHEbar/agentforge/forge/pipeline"
)

func newGenerateCmd() *cobra.Command {
	var (
		text    string
		rosters []string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "generate [brief-file]",
		Short: "Run teams over a project brief and write one bundle per team",
		Long: `Run one or more teams over a project brief. The brief is a .md, .markdown
or .txt file, or inline text given with --text. Each --roster names a preset,
a roster from team.roster_dir, or a roster file. Teams run concurrently and
each writes its own bundle to the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brief, err := loadBrief(args, text)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rs, err := a.rosters(rosters)
			if err != nil {
				return err
			}
			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}

			jobs := make([]pipeline.Job, len(rs))
			for i, r := range rs {
				jobs[i] = pipeline.Job{Roster: r, Brief: brief}
			}
			outcomes, runErr := runner.RunMany(ctx, jobs)

			if outDir == "" {
				outDir = a.cfg.Forge.OutputDir
			}
			for _, o := range outcomes {
				if err := a.writeOutcome(outDir, o); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "brief text instead of a file")
	cmd.Flags().StringSliceVarP(&rosters, "roster", "r", nil, "roster preset, name or file (repeatable, default team.default_roster)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default forge.output_dir)")
	return cmd
}

func loadBrief(args []string, text string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case text != "" && len(args) > 0:
		return "", errors.New("give either a brief file or --text, not both")
	case text != "":
		return text, nil
	case len(args) == 1:
		b, err := intake.Read(args[0])
		if err != nil {
			return "", err
		}
		if b.FullText == "" {
			return "", errors.New("brief is empty")
		}
		return b.FullText, nil
	default:
		return "", errors.New("a brief file or --text is required")
	}
}
