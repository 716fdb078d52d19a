package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newListCmd prints known workflows, following the teacher's cmd/list.go
// tabwriter-table convention.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known workflows and their latest phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(AppConfig)
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			metas, err := store.ListWorkflows(cmd.Context())
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}
			sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt.After(metas[j].UpdatedAt) })

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORKFLOW_ID\tPLAN\tPHASE\tPROGRESS\tUPDATED_AT")
			for _, md := range metas {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n", md.WorkflowID, md.PlanName, phaseColor(md.Phase).Sprint(md.Phase), md.Progress*100, md.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return w.Flush()
		},
	}
}

// phaseColor mirrors the teacher's use of fatih/color for terminal
// output: a red/green/yellow accent by outcome, plain elsewhere.
func phaseColor(phase string) *color.Color {
	switch phase {
	case "SUCCEEDED":
		return color.New(color.FgGreen)
	case "FAILED", "CANCELED":
		return color.New(color.FgRed)
	case "PAUSED":
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}
