package discovery

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drksbr/xmlabridge/internal/runtime"
)

// NewCommand returns the "discover" subcommand listing candidate target
// instances found under the workspace root.
func NewCommand(globals *runtime.Options) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List running Analysis Services workspace instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				detected, err := DefaultRoot()
				if err != nil {
					return fmt.Errorf("no workspace root: %w", err)
				}
				root = detected
			}

			instances, err := Scan(root)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no instances found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORKSPACE\tPORT\tDATABASE\tMODIFIED")
			for _, inst := range instances {
				db := inst.Database
				if db == "" {
					db = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", inst.ID, inst.Port, db, inst.ModTime.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&root, "workspace-root", "", "workspace root to scan (default: autodetect)")
	return cmd
}
