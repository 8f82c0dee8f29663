// README: lifecyclectl; operator CLI for inspecting and correcting request lifecycles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repairtrack/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lifecyclectl",
		Short: "Inspect and correct service request lifecycles",
		Long: `lifecyclectl talks to the repairtrack database and event stream directly.
It reads the same config.yaml and REPAIRTRACK_* variables as the API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.FlowsCmd())
	rootCmd.AddCommand(cli.InspectCmd(cli.Connect))
	rootCmd.AddCommand(cli.UpdateCmd(cli.Connect))
	rootCmd.AddCommand(cli.AssignTechnicianCmd(cli.Connect))
	rootCmd.AddCommand(cli.ExpireQuotesCmd(cli.Connect))
	rootCmd.AddCommand(cli.EventsCmd(cli.Connect))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
