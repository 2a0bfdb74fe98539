package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/autorelated/internal/cli/ui"
	"github.com/conduit-lang/autorelated/internal/orm/query"
)

// filterFlags are the row filters shared by explain and query
type filterFlags struct {
	where   []string
	orderBy string
	limit   int
	offset  int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, `Filter condition, e.g. "text LIKE 'a%'" (repeatable)`)
	cmd.Flags().StringVar(&f.orderBy, "order", "", `Sort order, e.g. "id DESC"`)
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of rows to skip")
}

// apply adds the filters to qb
func (f *filterFlags) apply(qb *query.QueryBuilder) error {
	for _, expr := range f.where {
		cond, err := query.ParseCondition(expr)
		if err != nil {
			return fmt.Errorf("invalid --where %q: %w", expr, err)
		}
		qb.WhereCondition(cond)
	}
	if f.orderBy != "" {
		parts := strings.Fields(f.orderBy)
		direction := "ASC"
		if len(parts) > 1 {
			direction = parts[1]
		}
		qb.OrderBy(parts[0], direction)
	}
	if f.limit > 0 {
		qb.Limit(f.limit)
	}
	if f.offset > 0 {
		qb.Offset(f.offset)
	}
	return nil
}

func newExplainCommand(opts *rootOptions) *cobra.Command {
	filters := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "explain [descriptor]",
		Short: "Show the optimized query for a descriptor",
		Long: `Build the query that loads the descriptor's resource, apply its loading
plan and print the resulting SQL together with the number of queries
serializing the rows will take. Nothing is executed.`,
		Example: `  autorelated explain TeacherSerializer
  autorelated explain ParentSerializer --where "text LIKE 'a%'" --limit 10`,
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

			qb, err := query.NewQueryBuilder(env.accessor, d.Resource(), nil)
			if err != nil {
				return err
			}
			if err := filters.apply(qb); err != nil {
				return err
			}

			optimizer := query.NewOptimizer(env.tracer, query.WithOptimizerLogger(env.logger))
			plan, err := optimizer.Explain(qb, d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, plan)
			}

			ui.Header(out, plan.Descriptor+" ("+plan.Resource+")", opts.noColor)

			sqlSection := ui.NewSection(out, "SQL", opts.noColor)
			sqlSection.AddLine("%s", plan.SQL)
			for i, arg := range plan.Args {
				sqlSection.AddLine("$%d = %v", i+1, arg)
			}
			sqlSection.Render()

			for _, section := range []struct {
				title string
				lines []string
			}{
				{"Select", plan.Select},
				{"Prefetch", plan.Prefetch},
				{"Optimizations", plan.Optimizations},
			} {
				s := ui.NewSection(out, section.title, opts.noColor)
				for _, line := range section.lines {
					s.AddLine("%s", line)
				}
				s.Render()
			}

			fmt.Fprintf(out, "Estimated queries: %d\n", plan.EstimatedQueries)
			writeDiagnostics(cmd.ErrOrStderr(), plan.Diagnostics, opts.noColor)
			return nil
		},
	}

	filters.register(cmd)
	return cmd
}
