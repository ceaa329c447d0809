package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"slidecast/config"
	"slidecast/project"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand() *cobra.Command {
	var dir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [project-id]",
		Short: "Show checkpointed projects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				dir = cfg.CheckpointDir
			}
			// Checkpoint warnings would interleave with the table.
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			projects, err := project.ReadCheckpoints(dir, logger)
			if err != nil {
				return fmt.Errorf("read checkpoints: %w", err)
			}
			if len(args) == 1 {
				projects = filterProjects(projects, args[0])
				if len(projects) == 0 {
					projects = []project.Project{project.Unknown(args[0])}
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(projects)
			}
			_, err = fmt.Fprintln(out, renderProjects(projects, shouldColorize(out)))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Checkpoint directory (defaults to CHECKPOINT_DIR)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw checkpoints as JSON")
	return cmd
}

func filterProjects(projects []project.Project, id string) []project.Project {
	for _, p := range projects {
		if p.ProjectID == id {
			return []project.Project{p}
		}
	}
	return nil
}

func renderProjects(projects []project.Project, colorize bool) string {
	if len(projects) == 0 {
		return "No projects."
	}
	headers := []string{"Project", "Stage", "Status", "Progress", "Completed stages", "Updated"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ProjectID,
			string(p.Stage),
			colorStatus(p.Status, colorize),
			progressLabel(p),
			completedStages(p),
			updatedLabel(p.Timestamp),
		})
	}
	return renderTable(headers, rows, aligns, colorize)
}

func progressLabel(p project.Project) string {
	if p.Total == 0 {
		return "-"
	}
	return strconv.Itoa(p.Current) + "/" + strconv.Itoa(p.Total)
}

func completedStages(p project.Project) string {
	n := 0
	for _, stage := range project.Stages {
		if res, ok := p.Results[stage]; ok && res.Completed() {
			n++
		}
	}
	return fmt.Sprintf("%d/%d", n, len(project.Stages))
}

func updatedLabel(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(time.DateTime)
}

func colorStatus(status project.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case project.StatusCompleted:
		return ansiGreen + string(status) + ansiReset
	case project.StatusFailed:
		return ansiRed + string(status) + ansiReset
	case project.StatusInProgress:
		return ansiYellow + string(status) + ansiReset
	default:
		return string(status)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
