package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/autorelated/internal/cli/ui"
	"github.com/conduit-lang/autorelated/internal/orm/schema"
)

// accessorView is the JSON form of a schema.AttributeDescriptor
type accessorView struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	RelatedType string `json:"related_type,omitempty"`
	Column      string `json:"column,omitempty"`
	ForeignKey  string `json:"foreign_key,omitempty"`
	JoinTable   string `json:"join_table,omitempty"`
}

func newAccessorsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accessors <resource>",
		Short: "List the attributes reachable from a resource",
		Long: `List every attribute of a resource, including the back-references other
resources declare toward it, with its relation kind and storage.`,
		Example: `  autorelated accessors Child
  autorelated accessors Course --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.logger.Sync() //nolint:errcheck

			attrs, err := env.accessor.Accessors(args[0])
			if errors.Is(err, schema.ErrUnknownResource) {
				ui.NotFound("Resource", args[0], env.accessor.Registry().List(), "", opts.noColor).Write(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			views := make([]accessorView, len(attrs))
			for i, a := range attrs {
				views[i] = accessorView{
					Name:        a.Name,
					Kind:        a.Kind.String(),
					RelatedType: a.RelatedType,
					Column:      a.Column,
					ForeignKey:  a.ForeignKey,
					JoinTable:   a.JoinTable,
				}
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, views)
			}

			table := ui.NewTable(out, opts.noColor, "NAME", "KIND", "RELATED", "STORAGE")
			for _, v := range views {
				table.AddRow(v.Name, v.Kind, dash(v.RelatedType), storage(v))
			}
			table.Render()
			return nil
		},
	}
}

func storage(v accessorView) string {
	switch {
	case v.JoinTable != "":
		return "via " + v.JoinTable
	case v.ForeignKey != "":
		return fmt.Sprintf("<- %s", v.ForeignKey)
	case v.Column != "":
		return v.Column
	default:
		return "-"
	}
}
