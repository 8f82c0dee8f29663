// README: update command; dry-runs or applies a status/stage/tracking change.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"repairtrack/internal/modules/request"
	"repairtrack/internal/types"
)

type updateFlags struct {
	status          string
	stage           string
	tracking        string
	schedule        string
	expectedVersion int
	override        bool
	dryRun          bool
	actor           string
}

// UpdateCmd returns the update command
func UpdateCmd(connect Connector) *cobra.Command {
	var f updateFlags

	cmd := &cobra.Command{
		Use:   "update [request-id]",
		Short: "Apply a lifecycle update to a request",
		Long: `Apply status, stage and tracking changes to a request in one call. The
fields are applied in order status, stage, tracking and the call commits or
fails as a whole.

--dry-run checks each requested value against the current state without
writing anything. --override relaxes ordering checks and is refused unless
lifecycle.allow_override is set.

Examples:
  lifecyclectl update 5f0c... --status Reviewed
  lifecyclectl update 5f0c... --tracking "Arriving to Receive" --schedule 2026-06-03
  lifecyclectl update 5f0c... --stage assessment --override --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.status == "" && f.stage == "" && f.tracking == "" && f.schedule == "" {
				return fmt.Errorf("nothing to update\nHint: pass --status, --stage, --tracking or --schedule")
			}
			if cmd.Flags().Changed("expected-version") && f.expectedVersion < 0 {
				return fmt.Errorf("--expected-version must not be negative")
			}
			upd, err := f.command(types.ID(args[0]), cmd.Flags().Changed("expected-version"))
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), connect, func(b *Backend) error {
				if f.dryRun {
					return runDryRun(cmd.Context(), cmd.OutOrStdout(), b, upd)
				}
				return runUpdate(cmd.Context(), cmd.OutOrStdout(), b, upd)
			})
		},
	}

	cmd.Flags().StringVar(&f.status, "status", "", "Target working status")
	cmd.Flags().StringVar(&f.stage, "stage", "", "Target stage")
	cmd.Flags().StringVar(&f.tracking, "tracking", "", "Target tracking status")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "Scheduled pickup date (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.expectedVersion, "expected-version", 0, "Fail unless the request is at this version")
	cmd.Flags().BoolVar(&f.override, "override", false, "Relax ordering checks")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Check the update without applying it")
	cmd.Flags().StringVar(&f.actor, "actor", "lifecyclectl", "Actor recorded on the timeline")

	return cmd
}

func (f updateFlags) command(id types.ID, withVersion bool) (request.UpdateCommand, error) {
	cmd := request.UpdateCommand{ID: id, Actor: f.actor, Override: f.override}
	if f.status != "" {
		s := request.Status(f.status)
		cmd.Status = &s
	}
	if f.stage != "" {
		s := request.Stage(f.stage)
		cmd.Stage = &s
	}
	if f.tracking != "" {
		s := request.TrackingStatus(f.tracking)
		cmd.TrackingStatus = &s
	}
	if f.schedule != "" {
		at, err := parseDate(f.schedule)
		if err != nil {
			return cmd, err
		}
		cmd.ScheduledPickupDate = &at
	}
	if withVersion {
		v := f.expectedVersion
		cmd.ExpectedVersion = &v
	}
	return cmd, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func runUpdate(ctx context.Context, w io.Writer, b *Backend, cmd request.UpdateCommand) error {
	r, err := b.Requests.Update(ctx, cmd)
	if err != nil {
		return describeError(err)
	}
	fmt.Fprintf(w, "✓ Updated %s (version %d)\n", r.TicketNumber, r.Version)
	fmt.Fprintf(w, "  Status: %s  Stage: %s  Tracking: %s\n", r.Status, r.Stage, r.TrackingStatus)
	return nil
}

func runDryRun(ctx context.Context, w io.Writer, b *Backend, cmd request.UpdateCommand) error {
	view, err := b.Requests.Transitions(ctx, cmd.ID, cmd.Override)
	if err != nil {
		return describeError(err)
	}
	type want struct {
		field request.Field
		value string
	}
	var wants []want
	if cmd.Status != nil {
		wants = append(wants, want{request.FieldStatus, string(*cmd.Status)})
	}
	if cmd.Stage != nil {
		wants = append(wants, want{request.FieldStage, string(*cmd.Stage)})
	}
	if cmd.TrackingStatus != nil {
		wants = append(wants, want{request.FieldTrackingStatus, string(*cmd.TrackingStatus)})
	}

	blocked := 0
	for _, wt := range wants {
		opt, ok := findOption(view.Options, wt.field, wt.value)
		switch {
		case !ok:
			blocked++
			fmt.Fprintf(w, "%s %s → %s: not a value of this request's flow\n", color.New(color.FgRed).Sprint("✗"), wt.field, wt.value)
		case opt.Current:
			fmt.Fprintf(w, "%s %s → %s: already set\n", color.New(color.FgHiBlack).Sprint("·"), wt.field, wt.value)
		case !opt.Allowed:
			blocked++
			fmt.Fprintf(w, "%s %s → %s: [%s] %s\n", color.New(color.FgRed).Sprint("✗"), wt.field, wt.value, opt.Code, opt.Reason)
		case opt.RequiresSchedule && cmd.ScheduledPickupDate == nil:
			blocked++
			fmt.Fprintf(w, "%s %s → %s: needs --schedule\n", color.New(color.FgRed).Sprint("✗"), wt.field, wt.value)
		default:
			fmt.Fprintf(w, "%s %s → %s\n", color.New(color.FgGreen).Sprint("✓"), wt.field, wt.value)
			if opt.Confirmation != "" {
				fmt.Fprintf(w, "    %s\n", opt.Confirmation)
			}
		}
	}
	if blocked > 0 {
		return fmt.Errorf("%d change(s) would be rejected", blocked)
	}
	fmt.Fprintln(w, "Dry run only; nothing written.")
	return nil
}

func findOption(opts []request.Option, field request.Field, value string) (request.Option, bool) {
	for _, o := range opts {
		if o.Field == field && o.Value == value {
			return o, true
		}
	}
	return request.Option{}, false
}

func describeError(err error) error {
	var te *request.TransitionError
	if errors.As(err, &te) {
		return fmt.Errorf("%s: %s\nField: %s  Current: %s  Requested: %s", te.Code, te.Message, te.Field, te.Current, te.Requested)
	}
	return err
}
