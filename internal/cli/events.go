// README: events command; tails the lifecycle change stream.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"repairtrack/internal/events"
)

// EventsCmd returns the events command
func EventsCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect lifecycle change events",
	}

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Follow lifecycle changes as they are committed",
		Long: `Print lifecycle change events from the Redis stream.

Examples:
  lifecyclectl events tail               # new events only
  lifecyclectl events tail --from 0      # replay the stream
  lifecyclectl events tail --from 0 --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			once, _ := cmd.Flags().GetBool("once")
			return withBackend(cmd.Context(), connect, func(b *Backend) error {
				return tailEvents(cmd.Context(), cmd.OutOrStdout(), b.Events, from, once)
			})
		},
	}
	tail.Flags().String("from", "$", "Stream id to start after ($ for new events, 0 for the beginning)")
	tail.Flags().Bool("once", false, "Print what is available and exit")

	cmd.AddCommand(tail)
	return cmd
}

func tailEvents(ctx context.Context, w io.Writer, r EventReader, from string, once bool) error {
	block := 5 * time.Second
	if once {
		block = 0
	}
	last := from
	for {
		changes, next, err := r.Read(ctx, last, 100, block)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read events: %w", err)
		}
		last = next
		for _, c := range changes {
			printChange(w, c)
		}
		if once && len(changes) == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printChange(w io.Writer, c events.Change) {
	fmt.Fprintf(w, "%s %s %s: %s → %s  %s (%s)\n",
		c.Timestamp.Format("15:04:05"),
		color.New(color.FgHiBlue).Sprint(c.TicketNumber),
		c.Field, c.OldValue, c.NewValue,
		c.Message, c.Actor)
}
