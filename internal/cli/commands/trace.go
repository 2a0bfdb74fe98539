package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/autorelated/internal/cli/ui"
	"github.com/conduit-lang/autorelated/internal/trace"
)

// resolutionView is the JSON form of a trace.Resolution
type resolutionView struct {
	Source     string            `json:"source"`
	Trail      []string          `json:"trail"`
	Select     string            `json:"select,omitempty"`
	Prefetch   string            `json:"prefetch,omitempty"`
	Diagnostic *trace.Diagnostic `json:"diagnostic,omitempty"`
}

func newTraceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace [descriptor]",
		Short: "Show how each source path of a descriptor resolves",
		Long: `Resolve every source path a descriptor reads against the schema and show
the attribute trail it walks, with the select and prefetch key it yields.`,
		Example: `  autorelated trace StudentSerializer
  autorelated trace TeacherSerializer --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.logger.Sync() //nolint:errcheck

			d, err := env.descriptor(cmd, args)
			if err != nil {
				return err
			}

			resolutions, err := env.tracer.Trace(d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				views := make([]resolutionView, len(resolutions))
				for i, r := range resolutions {
					views[i] = resolutionView{
						Source:     r.Source,
						Trail:      r.Trail.Names(),
						Select:     r.Select,
						Prefetch:   r.Prefetch,
						Diagnostic: r.Diagnostic,
					}
				}
				return writeJSON(out, views)
			}

			table := ui.NewTable(out, opts.noColor, "SOURCE", "TRAIL", "SELECT", "PREFETCH")
			var diags []trace.Diagnostic
			for _, r := range resolutions {
				kinds := make([]string, len(r.Trail))
				for i, attr := range r.Trail {
					kinds[i] = attr.Kind.String()
				}
				table.AddRow(r.Source, strings.Join(kinds, " > "), dash(r.Select), dash(r.Prefetch))
				if r.Diagnostic != nil {
					diags = append(diags, *r.Diagnostic)
				}
			}
			table.Render()
			writeDiagnostics(cmd.ErrOrStderr(), diags, opts.noColor)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
