package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-lang/autorelated/internal/cli/ui"
)

func newPlanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [descriptor]",
		Short: "Show the eager-loading directives of a descriptor",
		Long: `Derive the select, prefetch and projection directives a query needs so
that serializing its rows with the descriptor issues no per-row queries.

Select paths are to-one chains that can be joined. Prefetch paths are loaded
in one batched query per relation. Projection lists the attribute paths whose
columns must be loaded.`,
		Example: `  # Plan a descriptor
  autorelated plan TeacherSerializer

  # Pick a descriptor interactively
  autorelated plan

  # Machine-readable output
  autorelated plan ParentSerializer --json`,
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

			ds, err := env.tracer.Optimize(d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, ds)
			}

			ui.Header(out, d.Name()+" ("+d.Resource()+")", opts.noColor)
			for _, section := range []struct {
				title string
				paths []string
			}{
				{"Select", ds.Select.Slice()},
				{"Prefetch", ds.Prefetch.Slice()},
				{"Projection", ds.Projection.Slice()},
			} {
				s := ui.NewSection(out, section.title, opts.noColor)
				for _, p := range section.paths {
					s.AddLine("%s", p)
				}
				s.Render()
			}
			writeDiagnostics(cmd.ErrOrStderr(), ds.Diagnostics, opts.noColor)
			return nil
		},
	}
}
