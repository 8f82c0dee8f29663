// README: job and quote maintenance commands.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// AssignTechnicianCmd returns the assign-technician command
func AssignTechnicianCmd(connect Connector) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-technician [job-id] [technician]",
		Short: "Assign a technician to a job ticket",
		Long: `Assign a technician to a job ticket. Tracking statuses from Technician
Assigned onward stay blocked until the linked job has one.

Examples:
  lifecyclectl assign-technician JOB-2026-0001 "Rafiq Islam"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), connect, func(b *Backend) error {
				if err := b.Jobs.AssignTechnician(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("failed to assign technician: %w", err)
				}
				j, err := b.Jobs.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to reload job: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s assigned to %s\n", color.New(color.FgCyan).Sprint(j.ID), j.Technician)
				return nil
			})
		},
	}
}

// ExpireQuotesCmd returns the expire-quotes command
func ExpireQuotesCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire-quotes",
		Short: "Expire quotes whose validity has lapsed",
		Long: `Run one expiry sweep by hand. The worker does the same on a schedule.

Examples:
  lifecyclectl expire-quotes --limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withBackend(cmd.Context(), connect, func(b *Backend) error {
				n, err := b.Requests.ExpireDueQuotes(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("failed to expire quotes: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Expired %d quote(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", 100, "Maximum quotes to expire in one sweep")

	return cmd
}
