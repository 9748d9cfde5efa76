package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drksbr/xmlabridge/internal/discovery"
	"github.com/drksbr/xmlabridge/internal/proxy"
	"github.com/drksbr/xmlabridge/internal/runtime"
	"github.com/drksbr/xmlabridge/internal/version"
)

func Execute() error {
	opts := &runtime.Options{
		LogLevel: "info",
	}
	cmd := newRootCommand(opts)
	return cmd.Execute()
}

func newRootCommand(opts *runtime.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "xmlabridge",
		Short:        "Stable-port rewriting bridge for local Analysis Services instances",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.SetupLogger()
		},
	}

	cmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "emit logs in JSON format")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")

	cmd.AddCommand(proxy.NewCommand(opts))
	cmd.AddCommand(discovery.NewCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	})

	return cmd
}
