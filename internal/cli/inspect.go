// README: inspect command; shows a request, its allowed transitions and timeline.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"repairtrack/internal/modules/request"
	"repairtrack/internal/types"
)

// InspectCmd returns the inspect command
func InspectCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [request-id]",
		Short: "Show a request with its allowed transitions",
		Long: `Show the lifecycle fields of a service request, every candidate value for
status, stage and tracking with the rule that blocks it, and the timeline.

Examples:
  lifecyclectl inspect 5f0c...
  lifecyclectl inspect 5f0c... --override --no-timeline`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override, _ := cmd.Flags().GetBool("override")
			noTimeline, _ := cmd.Flags().GetBool("no-timeline")
			return withBackend(cmd.Context(), connect, func(b *Backend) error {
				return runInspect(cmd.Context(), cmd.OutOrStdout(), b, types.ID(args[0]), override, !noTimeline)
			})
		},
	}

	cmd.Flags().Bool("override", false, "Evaluate options with ordering checks relaxed")
	cmd.Flags().Bool("no-timeline", false, "Skip the timeline")

	return cmd
}

func runInspect(ctx context.Context, w io.Writer, b *Backend, id types.ID, override, timeline bool) error {
	r, err := b.Requests.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load request: %w", err)
	}
	view, err := b.Requests.Transitions(ctx, id, override)
	if err != nil {
		return fmt.Errorf("failed to evaluate transitions: %w", err)
	}

	printRequest(w, r)
	if view.QuoteBlocked {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("⚠ quote not sent; lifecycle is blocked"))
	}
	fmt.Fprintln(w)
	printOptions(w, view.Options)

	if !timeline {
		return nil
	}
	evs, err := b.Requests.Timeline(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load timeline: %w", err)
	}
	fmt.Fprintln(w, "\nTimeline:")
	for _, e := range evs {
		fmt.Fprintf(w, "  %s  %-15s %s  (%s)\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Field, e.Message, e.Actor)
	}
	return nil
}

func printRequest(w io.Writer, r *request.ServiceRequest) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgHiBlue).Sprint(r.TicketNumber), r.Device())
	fmt.Fprintf(w, "  Mode:     %s/%s\n", r.ServiceMode, r.Intent)
	fmt.Fprintf(w, "  Status:   %s\n", r.Status)
	fmt.Fprintf(w, "  Stage:    %s\n", r.Stage)
	fmt.Fprintf(w, "  Tracking: %s\n", r.TrackingStatus)
	if q := r.QuoteState(); q != "" {
		fmt.Fprintf(w, "  Quote:    %s\n", q)
	}
	if r.ConvertedJobID != nil {
		fmt.Fprintf(w, "  Job:      %s\n", *r.ConvertedJobID)
	}
	fmt.Fprintf(w, "  Version:  %d\n", r.Version)
}

func printOptions(w io.Writer, opts []request.Option) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tVALUE\tALLOWED\tREASON")
	for _, o := range opts {
		mark := color.New(color.FgGreen).Sprint("✓")
		switch {
		case o.Current:
			mark = color.New(color.FgHiBlack).Sprint("·")
		case !o.Allowed:
			mark = color.New(color.FgRed).Sprint("✗")
		}
		reason := o.Reason
		if o.Code != "" {
			reason = fmt.Sprintf("[%s] %s", o.Code, o.Reason)
		}
		if o.Allowed && o.RequiresSchedule {
			reason = "needs a scheduled pickup date"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Field, o.Value, mark, reason)
	}
	tw.Flush()
}
