package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-lang/autorelated/internal/cli/ui"
	"github.com/conduit-lang/autorelated/internal/serializer"
)

func newSourcesCommand(opts *rootOptions) *cobra.Command {
	var (
		includeRefs bool
		maxDepth    int
	)

	cmd := &cobra.Command{
		Use:   "sources [descriptor]",
		Short: "List the attribute paths a descriptor reads",
		Long: `List the dotted attribute paths read while rendering one record with the
descriptor, in field order, depth first.`,
		Example: `  autorelated sources ParentSerializer
  autorelated sources StudentSerializer --include-refs`,
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

			extractor := serializer.NewExtractor(
				serializer.WithLogger(env.logger),
				serializer.WithMaxDepth(maxDepth),
			)
			paths, warnings := extractor.Extract(d, includeRefs)

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, paths)
			}

			s := ui.NewSection(out, d.Name(), opts.noColor)
			for _, p := range paths {
				s.AddLine("%s", p)
			}
			s.Render()

			for _, w := range warnings {
				ui.Message{
					Level:   ui.LevelWarning,
					Problem: w.String(),
					NoColor: opts.noColor,
				}.Write(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeRefs, "include-refs", false, "Include identifier-only reference fields")
	cmd.Flags().IntVar(&maxDepth, "max-depth", serializer.DefaultMaxDepth, "Maximum descriptor nesting depth")

	return cmd
}
