package commands

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fatih/color"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/autorelated/internal/metrics"
	"github.com/conduit-lang/autorelated/internal/orm/query"
	"github.com/conduit-lang/autorelated/internal/orm/relationships"
)

// openDB opens the database; tests replace it
var openDB = sql.Open

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		filters     = &filterFlags{}
		url         string
		timeout     time.Duration
		noOptimize  bool
		showQueries bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "query [descriptor]",
		Short: "Load the rows of a descriptor's resource from the database",
		Long: `Run the optimized query for the descriptor against the configured
database, prefetch the relations it reads and print the loaded records as
JSON. The number of executed queries is reported on stderr.`,
		Example: `  # Load every teacher with the relations TeacherSerializer reads
  autorelated query TeacherSerializer

  # Compare with the unoptimized query count
  autorelated query TeacherSerializer --no-optimize

  # Filter, limit and dump Prometheus metrics
  autorelated query ParentSerializer --where "text = 'a'" --limit 5 --metrics`,
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

			if url == "" {
				url = env.cfg.DatabaseURL()
			}
			if url == "" {
				return errors.New("no database URL: set database.url, AUTORELATED_DATABASE_URL or DATABASE_URL")
			}

			db, err := openDB(env.cfg.SQLDriver(), url)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := db.PingContext(ctx); err != nil {
				return err
			}

			counter := &relationships.Counter{}
			registry := prometheus.NewRegistry()
			observed := relationships.Observe(db, relationships.Observers{
				counter,
				metrics.NewQueryObserver(registry),
			})

			qb, err := query.NewQueryBuilder(env.accessor, d.Resource(), observed)
			if err != nil {
				return err
			}
			qb.WithLoader(relationships.NewLoader(observed, env.accessor,
				relationships.WithMaxDepth(env.cfg.Loader.MaxDepth),
				relationships.WithLogger(env.logger),
			))
			if err := filters.apply(qb); err != nil {
				return err
			}

			if !noOptimize {
				optimizer := query.NewOptimizer(env.tracer, query.WithOptimizerLogger(env.logger))
				if qb, _, err = optimizer.Optimize(qb, d); err != nil {
					return err
				}
			}

			records, err := qb.All(ctx)
			if err != nil {
				return err
			}
			env.logger.Debug("query finished",
				zap.String("descriptor", d.Name()),
				zap.Int("records", len(records)),
				zap.Int("queries", counter.Count()),
				zap.Int("errors", counter.Errors()),
			)

			if err := writeJSON(cmd.OutOrStdout(), records); err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			if showQueries {
				for i, q := range counter.Queries() {
					color.New(color.FgHiBlack).Fprintf(stderr, "%d. %s\n", i+1, q)
				}
			}
			if !opts.json {
				color.New(color.FgGreen).Fprintf(stderr, "✓ %d record(s) loaded in %d quer%s\n",
					len(records), counter.Count(), plural(counter.Count()))
			}
			if showMetrics {
				return metrics.WriteText(stderr, registry)
			}
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVar(&url, "url", "", "Override the configured database URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Query timeout")
	cmd.Flags().BoolVar(&noOptimize, "no-optimize", false, "Skip the loading plan")
	cmd.Flags().BoolVar(&showQueries, "show-queries", false, "Print every executed query")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print Prometheus metrics after the run")

	return cmd
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
